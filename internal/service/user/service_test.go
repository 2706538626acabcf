package user

import (
	"context"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

type memStore struct {
	nextID int64
	users  map[int64]*model.User
}

func newMemStore(seed ...model.User) *memStore {
	m := &memStore{users: map[int64]*model.User{}}
	for i := range seed {
		u := seed[i]
		m.users[u.ID] = &u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
	return m
}

func (m *memStore) List(context.Context) ([]model.User, error) {
	out := []model.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, u *model.User) error {
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) Update(ctx context.Context, id int64, upd repository.UserUpdate) (*model.User, error) {
	u := m.users[id]
	if upd.Role != nil && *upd.Role != rbac.RoleSA && m.lastSA(id) {
		return nil, repository.ErrLastSA
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	return m.FindByID(ctx, id)
}

// lastSA id 是唯一的 SA
func (m *memStore) lastSA(id int64) bool {
	n := 0
	for _, u := range m.users {
		if u.Role == rbac.RoleSA {
			n++
		}
	}
	u, ok := m.users[id]
	return ok && u.Role == rbac.RoleSA && n == 1
}

func (m *memStore) SetRefreshToken(_ context.Context, id int64, token string) error {
	m.users[id].RefreshToken = token
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return pgx.ErrNoRows
	}
	if m.lastSA(id) {
		return repository.ErrLastSA
	}
	delete(m.users, id)
	return nil
}

var (
	sa    = rbac.Actor{ID: 1, Email: "root@example.com", Role: rbac.RoleSA}
	admin = rbac.Actor{ID: 2, Email: "admin@example.com", Role: rbac.RoleAdmin}
	plain = rbac.Actor{ID: 3, Email: "user@example.com", Role: rbac.RoleUser}
)

func seeded() *memStore {
	return newMemStore(
		model.User{ID: 1, Email: "root@example.com", Role: rbac.RoleSA, Status: model.StatusActive},
		model.User{ID: 2, Email: "admin@example.com", Role: rbac.RoleAdmin, Status: model.StatusActive},
		model.User{ID: 3, Email: "user@example.com", Role: rbac.RoleUser, Status: model.StatusActive},
	)
}

func assertAppErr(t *testing.T, err error, status int, message string) {
	t.Helper()
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func ptr[T any](v T) *T { return &v }

func TestCreateUser(t *testing.T) {
	svc := NewService(seeded(), zap.NewNop())
	ctx := context.Background()

	u, err := svc.Create(ctx, admin, CreateInput{Name: "New", Email: "New@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, rbac.RoleUser, u.Role)
	assert.Equal(t, model.StatusActive, u.Status)

	_, err = svc.Create(ctx, admin, CreateInput{Name: "Dup", Email: "new@example.com", Password: "secret1"})
	assertAppErr(t, err, http.StatusBadRequest, "Email already exists")

	_, err = svc.Create(ctx, admin, CreateInput{Name: "Boss", Email: "boss@example.com", Password: "secret1", Role: rbac.RoleSA})
	assertAppErr(t, err, http.StatusForbidden, "Only SA can create SA users")

	_, err = svc.Create(ctx, plain, CreateInput{Name: "X", Email: "x@example.com", Password: "secret1"})
	assertAppErr(t, err, http.StatusForbidden, "Forbidden")
}

func TestAdminCannotTouchSA(t *testing.T) {
	svc := NewService(seeded(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, 1, repository.UserUpdate{Name: ptr("Renamed")})
	assertAppErr(t, err, http.StatusForbidden, "Only SA can modify SA users")

	_, err = svc.UpdateStatus(ctx, admin, 1, model.StatusInactive)
	assertAppErr(t, err, http.StatusForbidden, "Only SA can modify SA users")

	_, err = svc.Update(ctx, admin, 3, repository.UserUpdate{Role: ptr(rbac.RoleAdmin)})
	assertAppErr(t, err, http.StatusForbidden, "Only SA can change roles")

	u, err := svc.UpdateStatus(ctx, admin, 3, model.StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, u.Status)
}

func TestDeactivateClearsRefreshToken(t *testing.T) {
	store := seeded()
	store.users[3].RefreshToken = "rt-3"
	store.users[2].RefreshToken = "rt-2"
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, admin, 3, model.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, "rt-3", store.users[3].RefreshToken)

	_, err = svc.UpdateStatus(ctx, admin, 3, model.StatusInactive)
	require.NoError(t, err)
	assert.Empty(t, store.users[3].RefreshToken)

	_, err = svc.Update(ctx, sa, 2, repository.UserUpdate{Status: ptr(model.StatusInactive)})
	require.NoError(t, err)
	assert.Empty(t, store.users[2].RefreshToken)
}

func TestLastSACannotBeDemoted(t *testing.T) {
	store := seeded()
	store.users[4] = &model.User{ID: 4, Email: "other@example.com", Role: rbac.RoleUser}
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	// 需要另一个 SA 来执行操作
	other := rbac.Actor{ID: 4, Role: rbac.RoleSA}

	_, err := svc.ChangeRole(ctx, other, 1, rbac.RoleUser)
	assertAppErr(t, err, http.StatusBadRequest, "Cannot demote the last system admin")

	_, err = svc.Update(ctx, other, 1, repository.UserUpdate{Role: ptr(rbac.RoleAdmin)})
	assertAppErr(t, err, http.StatusBadRequest, "Cannot demote the last system admin")

	// 提升第二个 SA 后可以降级第一个
	_, err = svc.ChangeRole(ctx, sa, 4, rbac.RoleSA)
	require.NoError(t, err)
	u, err := svc.ChangeRole(ctx, other, 1, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, u.Role)
}

func TestChangeRoleRules(t *testing.T) {
	svc := NewService(seeded(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.ChangeRole(ctx, admin, 3, rbac.RoleAdmin)
	assertAppErr(t, err, http.StatusForbidden, "Forbidden")

	_, err = svc.ChangeRole(ctx, sa, 1, rbac.RoleUser)
	assertAppErr(t, err, http.StatusBadRequest, "You cannot change your own role")

	_, err = svc.ChangeRole(ctx, sa, 99, rbac.RoleUser)
	assertAppErr(t, err, http.StatusNotFound, "User not found")

	u, err := svc.ChangeRole(ctx, sa, 3, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, u.Role)
}

func TestDeleteUser(t *testing.T) {
	store := seeded()
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	assertAppErr(t, svc.Delete(ctx, admin, 3), http.StatusForbidden, "Forbidden")
	assertAppErr(t, svc.Delete(ctx, sa, 1), http.StatusBadRequest, "You cannot delete yourself")
	assertAppErr(t, svc.Delete(ctx, sa, 42), http.StatusNotFound, "User not found")

	other := rbac.Actor{ID: 2, Role: rbac.RoleSA}
	assertAppErr(t, svc.Delete(ctx, other, 1), http.StatusBadRequest, "Cannot delete the last Super Admin")

	require.NoError(t, svc.Delete(ctx, sa, 3))
	_, ok := store.users[3]
	assert.False(t, ok)
}

func TestGetUserNotFound(t *testing.T) {
	svc := NewService(seeded(), zap.NewNop())
	_, err := svc.Get(context.Background(), 77)
	assertAppErr(t, err, http.StatusNotFound, "User not found")
}
