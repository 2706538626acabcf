package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/model"
	"taskflow/pkg/apperr"
	"taskflow/pkg/config"
	"taskflow/pkg/rbac"
	"taskflow/pkg/util"
)

const testSecret = "test-secret"

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.User
	events []*mqcontracts.PasswordResetRequestedPayload
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[int64]*model.User{}}
}

func (m *memUsers) find(fn func(*model.User) bool) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if fn(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id }), nil
}

func (m *memUsers) FindByRefreshToken(_ context.Context, token string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return token != "" && u.RefreshToken == token }), nil
}

func (m *memUsers) FindByResetToken(_ context.Context, token string) (*model.User, error) {
	now := time.Now()
	return m.find(func(u *model.User) bool {
		return token != "" && u.ResetToken == token && u.ResetTokenExp != nil && u.ResetTokenExp.After(now)
	}), nil
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) SetRefreshToken(_ context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].RefreshToken = token
	return nil
}

func (m *memUsers) SetResetToken(_ context.Context, id int64, token string, exp time.Time, event *mqcontracts.PasswordResetRequestedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].ResetToken = token
	m.byID[id].ResetTokenExp = &exp
	m.events = append(m.events, event)
	return nil
}

func (m *memUsers) ResetPassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.PasswordHash = hash
	u.ResetToken = ""
	u.ResetTokenExp = nil
	u.RefreshToken = ""
	return nil
}

type memThrottle struct {
	counts map[string]int64
}

func (t *memThrottle) IncrementAndGet(_ context.Context, key string) (int64, error) {
	t.counts[key]++
	return t.counts[key], nil
}

func (t *memThrottle) Get(_ context.Context, key string) (int64, error) {
	return t.counts[key], nil
}

func (t *memThrottle) Reset(_ context.Context, key string) error {
	delete(t.counts, key)
	return nil
}

type fakeGoogle struct {
	profile *GoogleProfile
	err     error
}

func (g *fakeGoogle) VerifyIDToken(context.Context, string) (*GoogleProfile, error) {
	return g.profile, g.err
}

func (g *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (g *fakeGoogle) Exchange(context.Context, string) (*GoogleProfile, error) {
	return g.profile, g.err
}

func newTestService(users *memUsers, google GoogleProvider) (*Service, *memThrottle) {
	throttle := &memThrottle{counts: map[string]int64{}}
	jwtCfg := config.JWTConfig{Secret: testSecret, AccessTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour}
	return NewService(users, throttle, google, jwtCfg, "http://localhost:5173/", zap.NewNop()), throttle
}

func requireStatus(t *testing.T, err error, status int, message string) {
	t.Helper()
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	assert.Equal(t, status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestRegisterRejectsExistingEmail(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice@Example.com", "secret1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, rbac.RoleUser, u.Role)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = svc.Register(ctx, "alice@example.com", "secret2", "")
	requireStatus(t, err, http.StatusBadRequest, "User already exists")
}

func TestLoginIssuesMatchingTokens(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "bob@example.com", "secret1", "Bob")
	require.NoError(t, err)

	pair, err := svc.Login(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleUser, pair.Role)

	access, err := util.ParseToken(pair.AccessToken, testSecret, util.TokenAccess)
	require.NoError(t, err)
	refresh, err := util.ParseToken(pair.RefreshToken, testSecret, util.TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, u.ID, access.UserID)
	assert.Equal(t, access.UserID, refresh.UserID)
	assert.Equal(t, "Bob", access.Name)

	stored, _ := users.FindByID(ctx, u.ID)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)
}

func TestLoginFailures(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	_, err := svc.Login(ctx, "ghost@example.com", "whatever")
	requireStatus(t, err, http.StatusUnauthorized, "Invalid credentials")

	_, err = svc.Register(ctx, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "carol@example.com", "wrong")
	requireStatus(t, err, http.StatusUnauthorized, "Invalid credentials")

	require.NoError(t, users.Create(ctx, &model.User{Email: "g@example.com", Provider: model.ProviderGoogle, Role: rbac.RoleUser, Status: model.StatusActive}))
	_, err = svc.Login(ctx, "g@example.com", "whatever")
	requireStatus(t, err, http.StatusBadRequest, "Please login using google")

	hash, _ := util.HashPassword("secret1")
	require.NoError(t, users.Create(ctx, &model.User{Email: "off@example.com", PasswordHash: hash, Provider: model.ProviderLocal, Role: rbac.RoleUser, Status: model.StatusInactive}))
	_, err = svc.Login(ctx, "off@example.com", "secret1")
	requireStatus(t, err, http.StatusForbidden, "Account is inactive")
}

func TestLoginThrottle(t *testing.T) {
	users := newMemUsers()
	svc, throttle := newTestService(users, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dan@example.com", "secret1", "Dan")
	require.NoError(t, err)

	for i := 0; i < maxLoginFailures; i++ {
		_, err = svc.Login(ctx, "dan@example.com", "wrong")
		requireStatus(t, err, http.StatusUnauthorized, "")
	}
	_, err = svc.Login(ctx, "dan@example.com", "secret1")
	requireStatus(t, err, http.StatusTooManyRequests, "")

	require.NoError(t, throttle.Reset(ctx, util.FormatLoginKey("dan@example.com")))
	_, err = svc.Login(ctx, "dan@example.com", "secret1")
	require.NoError(t, err)
}

func TestRefreshRotatesTokens(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "erin@example.com", "secret1", "Erin")
	require.NoError(t, err)
	first, err := svc.Login(ctx, "erin@example.com", "secret1")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Empty(t, second.Role)

	// 旧 token 已失效
	_, err = svc.Refresh(ctx, first.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, "Invalid or expired refresh token")

	_, err = svc.Refresh(ctx, "")
	requireStatus(t, err, http.StatusUnauthorized, "No refresh token provided")
}

func TestRefreshClearsTokenOnVerifyFailure(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "fay@example.com", "secret1", "Fay")
	require.NoError(t, err)

	// 用 access token 冒充 refresh token
	bogus, err := util.GenerateToken(util.Claims{UserID: u.ID, Type: util.TokenAccess}, testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, users.SetRefreshToken(ctx, u.ID, bogus))

	_, err = svc.Refresh(ctx, bogus)
	requireStatus(t, err, http.StatusUnauthorized, "Invalid or expired refresh token")

	stored, _ := users.FindByID(ctx, u.ID)
	assert.Empty(t, stored.RefreshToken)
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "hal@example.com", "secret1", "Hal")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "hal@example.com", "secret1")
	require.NoError(t, err)

	// 登录后被停用
	users.mu.Lock()
	users.byID[u.ID].Status = model.StatusInactive
	users.mu.Unlock()

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	requireStatus(t, err, http.StatusForbidden, "Account is inactive")

	stored, _ := users.FindByID(ctx, u.ID)
	assert.Empty(t, stored.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, "Invalid or expired refresh token")
}

func TestLogoutClearsRefreshToken(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "gus@example.com", "secret1", "Gus")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "gus@example.com", "secret1")
	require.NoError(t, err)

	// 无效 token 静默忽略
	require.NoError(t, svc.LogoutToken(ctx, ""))
	require.NoError(t, svc.LogoutToken(ctx, "garbage"))
	require.NoError(t, svc.LogoutToken(ctx, pair.RefreshToken))
	stored, _ := users.FindByID(ctx, u.ID)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)

	require.NoError(t, svc.LogoutToken(ctx, pair.AccessToken))
	stored, _ = users.FindByID(ctx, u.ID)
	assert.Empty(t, stored.RefreshToken)
}

func TestParseAccessToken(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "hal@example.com", "secret1", "Hal")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "hal@example.com", "secret1")
	require.NoError(t, err)

	actor, err := svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, rbac.Actor{ID: u.ID, Email: "hal@example.com", Role: rbac.RoleUser, Name: "Hal"}, actor)

	_, err = svc.ParseAccessToken(pair.RefreshToken)
	assert.Error(t, err)

	forged, err := util.GenerateToken(util.Claims{UserID: u.ID, Role: "ROOT", Type: util.TokenAccess}, testSecret, time.Hour)
	require.NoError(t, err)
	_, err = svc.ParseAccessToken(forged)
	assert.ErrorIs(t, err, util.ErrWrongTokenType)
}

func TestForgotAndResetPassword(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, nil)
	ctx := context.Background()

	require.NoError(t, svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, users.events)

	u, err := svc.Register(ctx, "hal@example.com", "secret1", "Hal")
	require.NoError(t, err)
	require.NoError(t, svc.ForgotPassword(ctx, "hal@example.com"))
	require.Len(t, users.events, 1)

	stored, _ := users.FindByID(ctx, u.ID)
	assert.Len(t, stored.ResetToken, 64)
	require.NotNil(t, stored.ResetTokenExp)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *stored.ResetTokenExp, 5*time.Second)

	event := users.events[0]
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "hal@example.com", event.Email)
	assert.Equal(t, "http://localhost:5173/reset-password/"+stored.ResetToken, event.ResetURL)

	err = svc.ResetPassword(ctx, "not-a-token", "newpass1")
	requireStatus(t, err, http.StatusBadRequest, "Invalid or expired token")

	require.NoError(t, svc.ResetPassword(ctx, stored.ResetToken, "newpass1"))
	_, err = svc.Login(ctx, "hal@example.com", "newpass1")
	require.NoError(t, err)

	// token 只能用一次
	err = svc.ResetPassword(ctx, stored.ResetToken, "another1")
	requireStatus(t, err, http.StatusBadRequest, "Invalid or expired token")
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	users := newMemUsers()
	svc, _ := newTestService(users, &fakeGoogle{profile: &GoogleProfile{Email: "Ivy@Gmail.com"}})
	ctx := context.Background()

	pair, err := svc.GoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	u, _ := users.FindByEmail(ctx, "ivy@gmail.com")
	require.NotNil(t, u)
	assert.Equal(t, "ivy", u.Name)
	assert.Equal(t, model.ProviderGoogle, u.Provider)

	// 第二次登录复用同一账号
	_, err = svc.GoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Len(t, users.byID, 1)
}

func TestGoogleLoginInvalidToken(t *testing.T) {
	svc, _ := newTestService(newMemUsers(), &fakeGoogle{err: ErrInvalidGoogleToken})
	_, err := svc.GoogleLogin(context.Background(), "bad")
	requireStatus(t, err, http.StatusBadRequest, "Invalid Google token")

	unconfigured, _ := newTestService(newMemUsers(), nil)
	_, err = unconfigured.GoogleLogin(context.Background(), "tok")
	requireStatus(t, err, http.StatusInternalServerError, "Server misconfiguration")
}

func TestGoogleCallbackRedirects(t *testing.T) {
	svc, _ := newTestService(newMemUsers(), &fakeGoogle{profile: &GoogleProfile{Email: "jo@gmail.com", Name: "Jo"}})
	target := svc.GoogleCallback(context.Background(), "code")
	assert.True(t, strings.HasPrefix(target, "http://localhost:5173/auth/callback?token="))

	failing, _ := newTestService(newMemUsers(), &fakeGoogle{err: ErrInvalidGoogleToken})
	assert.Equal(t, "http://localhost:5173/login?error=oauth", failing.GoogleCallback(context.Background(), "code"))
	assert.Equal(t, "http://localhost:5173/login?error=oauth", svc.GoogleCallback(context.Background(), ""))
}
