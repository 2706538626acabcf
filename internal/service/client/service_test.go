package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

type memStore struct {
	nextID  int64
	clients map[int64]*model.Client
}

func newMemStore() *memStore {
	return &memStore{clients: map[int64]*model.Client{}}
}

func (m *memStore) List(_ context.Context, ownerID *int64) ([]model.Client, error) {
	out := []model.Client{}
	for _, c := range m.clients {
		if ownerID == nil || c.UserID == *ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) FindByID(_ context.Context, id int64) (*model.Client, error) {
	if c, ok := m.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) emailTaken(email string, except int64) bool {
	for _, c := range m.clients {
		if c.Email == email && c.ID != except {
			return true
		}
	}
	return false
}

func duplicateEmail() error {
	return &pgconn.PgError{Code: "23505", TableName: "clients", ConstraintName: "clients_email_key"}
}

func (m *memStore) Create(_ context.Context, c *model.Client) error {
	if m.emailTaken(c.Email, 0) {
		return duplicateEmail()
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *memStore) Update(ctx context.Context, id int64, upd repository.ClientUpdate) (*model.Client, error) {
	c := m.clients[id]
	if upd.Email != nil {
		if m.emailTaken(*upd.Email, id) {
			return nil, duplicateEmail()
		}
		c.Email = *upd.Email
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Company != nil {
		c.Company = upd.Company
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	return m.FindByID(ctx, id)
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	delete(m.clients, id)
	return nil
}

func (m *memStore) NextID(context.Context) (int64, error) {
	return m.nextID + 1, nil
}

var (
	admin = rbac.Actor{ID: 1, Role: rbac.RoleAdmin}
	owner = rbac.Actor{ID: 2, Role: rbac.RoleUser}
	other = rbac.Actor{ID: 3, Role: rbac.RoleUser}
)

func ptr[T any](v T) *T { return &v }

func TestCreateClientTrimsAndDefaults(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())

	c, err := svc.Create(context.Background(), owner, CreateInput{
		Name:    "  Acme ",
		Email:   " ops@acme.io ",
		Company: ptr("  Acme Inc "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, "ops@acme.io", c.Email)
	assert.Equal(t, "Acme Inc", *c.Company)
	assert.Nil(t, c.Phone)
	assert.Equal(t, model.StatusActive, c.Status)
	assert.Equal(t, owner.ID, c.UserID)
}

func TestCreateClientDuplicateEmail(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, CreateInput{Name: "A", Email: "a@x.io"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, CreateInput{Name: "B", Email: "a@x.io"})

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "A client with this email already exists.", appErr.Message)
}

func TestListScopesByRole(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	_, _ = svc.Create(ctx, owner, CreateInput{Name: "Mine", Email: "m@x.io"})
	_, _ = svc.Create(ctx, other, CreateInput{Name: "Theirs", Email: "t@x.io"})

	mine, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Name)

	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateInput{Name: "Mine", Email: "m@x.io"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, other, c.ID, repository.ClientUpdate{Name: ptr("Hijack")})
	assert.Equal(t, http.StatusForbidden, apperr.StatusOf(err))

	updated, err := svc.Update(ctx, admin, c.ID, repository.ClientUpdate{Name: ptr(" Renamed ")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = svc.Update(ctx, admin, 404, repository.ClientUpdate{Name: ptr("x")})
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	assert.Equal(t, http.StatusForbidden, apperr.StatusOf(svc.Delete(ctx, other, c.ID)))
	require.NoError(t, svc.Delete(ctx, owner, c.ID))

	next, err := svc.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}
