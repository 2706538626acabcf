package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/service/auth"
	"taskflow/pkg/util"
)

const oauthStateCookie = "oauth_state"

// AuthService 由 auth.Service 实现
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, token string) (*auth.TokenPair, error)
	LogoutToken(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	GoogleLogin(ctx context.Context, idToken string) (*auth.TokenPair, error)
	GoogleAuthURL(state string) (string, error)
	GoogleCallback(ctx context.Context, code string) string
}

type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, gin.H{"id": u.ID, "email": u.Email})
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, pair)
}

// Refresh POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	// body 为空时交给 service 返回 401
	_ = c.ShouldBindJSON(&req)

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, pair)
}

// Logout POST /api/v1/auth/logout，总是成功
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.LogoutToken(c.Request.Context(), util.ExtractToken(c.Request)); err != nil {
		h.logger.Warn("Failed to clear refresh token on logout", zap.Error(err))
	}
	respondMessage(c, "Logged out successfully")
}

// ForgotPassword POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, auth.ForgotPasswordMessage)
}

// ResetPassword POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, "Password reset successfully")
}

// GoogleToken POST /api/v1/auth/google，前端直接提交 ID token
func (h *AuthHandler) GoogleToken(c *gin.Context) {
	var req dto.GoogleTokenRequest
	_ = c.ShouldBindJSON(&req)

	pair, err := h.auth.GoogleLogin(c.Request.Context(), req.Token)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, pair)
}

// GoogleRedirect GET /api/v1/auth/google
func (h *AuthHandler) GoogleRedirect(c *gin.Context) {
	state, err := util.RandomHex(16)
	if err != nil {
		_ = c.Error(err)
		return
	}
	url, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback GET /api/v1/auth/google/callback
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	expected, err := c.Cookie(oauthStateCookie)
	if err != nil || expected == "" || expected != c.Query("state") {
		h.logger.Warn("OAuth state mismatch")
		// 空 code 让 service 返回失败地址
		code = ""
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	c.Redirect(http.StatusFound, h.auth.GoogleCallback(c.Request.Context(), code))
}
