package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/internal/handler"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTokens map[string]rbac.Actor

func (f fakeTokens) ParseAccessToken(token string) (rbac.Actor, error) {
	if a, ok := f[token]; ok {
		return a, nil
	}
	return rbac.Actor{}, errors.New("bad token")
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var tokens = fakeTokens{
	"user-token":  {ID: 2, Email: "u@example.com", Role: rbac.RoleUser, Name: "U"},
	"admin-token": {ID: 1, Email: "a@example.com", Role: rbac.RoleAdmin},
}

func newTestRouter(db Pinger) *gin.Engine {
	h := Handlers{
		Auth:      handler.NewAuthHandler(nil, zap.NewNop()),
		User:      handler.NewUserHandler(nil),
		Client:    handler.NewClientHandler(nil),
		Project:   handler.NewProjectHandler(nil),
		Task:      handler.NewTaskHandler(nil),
		Dashboard: handler.NewDashboardHandler(nil),
		Result:    handler.NewResultHandler(nil),
		AI:        handler.NewAIHandler(nil),
		Admin:     handler.NewAdminHandler(nil, zap.NewNop()),
	}
	return NewRouter(h, Options{
		Tokens: tokens,
		DB:     db,
		Logger: zap.NewNop(),
	}).Engine
}

func call(t *testing.T, r http.Handler, method, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(fakePinger{})

	for _, path := range []string{"/healthz", "/health", "/api/v1/health"} {
		w, body := call(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "ok", body["status"])
	}

	w, _ := call(t, r, http.MethodHead, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := call(t, r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReportsDBFailure(t *testing.T) {
	r := newTestRouter(fakePinger{err: errors.New("connection refused")})

	w, body := call(t, r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "db_not_ready", body["status"])
}

func TestTraceHeaderEchoed(t *testing.T) {
	r := newTestRouter(fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, w.Header().Get("X-Trace-ID"), 32)
}

func TestNoRoute(t *testing.T) {
	w, body := call(t, newTestRouter(fakePinger{}), http.MethodGet, "/api/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Route not found", body["message"])
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter(fakePinger{})

	w, body := call(t, r, http.MethodGet, "/api/v1/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", body["message"])

	w, body = call(t, r, http.MethodGet, "/api/v1/tasks", "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", body["message"])

	w, body = call(t, r, http.MethodGet, "/api/core/users/me", "user-token")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "u@example.com", data["email"])
	assert.Equal(t, "USER", data["role"])
}

func TestRoleGuards(t *testing.T) {
	r := newTestRouter(fakePinger{})

	cases := []struct {
		method, path, token string
	}{
		{http.MethodGet, "/api/core/users", "user-token"},
		{http.MethodGet, "/api/core/clients", "user-token"},
		{http.MethodPost, "/api/v1/projects", "user-token"},
		{http.MethodGet, "/api/v1/projects/next-id", "user-token"},
		{http.MethodPut, "/api/core/users/5/role", "admin-token"},
		{http.MethodDelete, "/api/core/users/5", "admin-token"},
		{http.MethodPost, "/api/core/admin/outbox/replay?id=1", "admin-token"},
	}
	for _, tc := range cases {
		w, body := call(t, r, tc.method, tc.path, tc.token)
		assert.Equal(t, http.StatusForbidden, w.Code, tc.path)
		assert.Equal(t, "Forbidden: insufficient permissions", body["message"], tc.path)
	}
}

func TestRequirePermissionUserManage(t *testing.T) {
	r := gin.New()
	r.Use(ErrorMiddleware(zap.NewNop()))
	r.GET("/users", AuthMiddleware(tokens), RequirePermission(rbac.PermissionUserManage), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w, _ := call(t, r, http.MethodGet, "/users", "admin-token")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body := call(t, r, http.MethodGet, "/users", "user-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden: insufficient permissions", body["message"])
}

func TestDocsServed(t *testing.T) {
	r := newTestRouter(fakePinger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"app error", apperr.NotFound("Task not found"), http.StatusNotFound, "Task not found"},
		{"wrapped app error", fmt.Errorf("ctx: %w", apperr.Conflict("busy")), http.StatusConflict, "busy"},
		{"permission", &rbac.PermissionDeniedError{Role: rbac.RoleUser, Permission: "x"}, http.StatusForbidden, "Forbidden: insufficient permissions"},
		{"unique", &pgconn.PgError{Code: "23505", TableName: "clients", ConstraintName: "clients_email_key"}, http.StatusBadRequest, "A record with this email already exists."},
		{"foreign key", &pgconn.PgError{Code: "23503"}, http.StatusBadRequest, "Foreign key constraint failed."},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), http.StatusNotFound, "Record not found."},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, msg)
		})
	}
}

func TestPanicRecovered(t *testing.T) {
	r := gin.New()
	r.Use(gin.CustomRecovery(RecoveryHandler(zap.NewNop())), ErrorMiddleware(zap.NewNop()))
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w, body := call(t, r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", body["message"])
}

func TestUserRateLimiter(t *testing.T) {
	limiter := NewUserRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.Use(ErrorMiddleware(zap.NewNop()))
	r.Use(func(c *gin.Context) {
		handler.SetActor(c, rbac.Actor{ID: 9})
		c.Next()
	})
	r.Use(limiter.Middleware())
	r.GET("/ai", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		w, _ := call(t, r, http.MethodGet, "/ai", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	w, body := call(t, r, http.MethodGet, "/ai", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests, please slow down.", body["message"])

	// 令牌恢复
	now = now.Add(time.Second)
	w, _ = call(t, r, http.MethodGet, "/ai", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewUserRateLimiter(0, 0)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/ai", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		w, _ := call(t, r, http.MethodGet, "/ai", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
