package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/model"
	"taskflow/pkg/apperr"
	"taskflow/pkg/config"
	"taskflow/pkg/db"
	"taskflow/pkg/logger"
	"taskflow/pkg/metrics"
	"taskflow/pkg/rbac"
	"taskflow/pkg/trace"
	"taskflow/pkg/util"
)

const (
	resetTokenTTL    = 15 * time.Minute
	maxLoginFailures = 5

	msgInvalidCredentials = "Invalid credentials"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgInactive           = "Account is inactive"
	ForgotPasswordMessage = "If your email exists, a reset link has been sent."

	// LoginThrottleWindow 登录失败计数的窗口
	LoginThrottleWindow = 15 * time.Minute
)

// UserStore 由 repository.UserRepository 实现
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByRefreshToken(ctx context.Context, token string) (*model.User, error)
	FindByResetToken(ctx context.Context, token string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	SetRefreshToken(ctx context.Context, id int64, token string) error
	SetResetToken(ctx context.Context, id int64, token string, exp time.Time, event *mqcontracts.PasswordResetRequestedPayload) error
	ResetPassword(ctx context.Context, id int64, hash string) error
}

// LoginThrottle 由 util.RetryCounter 实现，nil 表示不限制
type LoginThrottle interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// TokenPair 登录 / 刷新的返回
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Role         rbac.Role `json:"role,omitempty"`
}

type Service struct {
	users       UserStore
	throttle    LoginThrottle
	google      GoogleProvider
	jwt         config.JWTConfig
	frontendURL string
	logger      *zap.Logger
}

func NewService(users UserStore, throttle LoginThrottle, google GoogleProvider, jwtCfg config.JWTConfig, frontendURL string, logger *zap.Logger) *Service {
	return &Service{
		users:       users,
		throttle:    throttle,
		google:      google,
		jwt:         jwtCfg,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// Register 创建本地账号，角色固定为 USER
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.BadRequest("User already exists")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		Role:         rbac.RoleUser,
		Status:       model.StatusActive,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// 并发注册时由唯一约束兜底
		if _, dup := db.UniqueViolation(err); dup {
			return nil, apperr.BadRequest("User already exists")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	log := logger.WithTrace(ctx, s.logger)
	key := util.FormatLoginKey(email)

	if s.throttle != nil {
		if n, err := s.throttle.Get(ctx, key); err != nil {
			log.Warn("Login throttle unavailable", zap.Error(err))
		} else if n >= maxLoginFailures {
			metrics.IncrementLoginFailure("throttled")
			return nil, apperr.TooManyRequests("Too many login attempts. Please try again later.")
		}
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.recordFailure(ctx, key, "unknown_email")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if u.Provider != "" && u.Provider != model.ProviderLocal {
		return nil, apperr.BadRequest(fmt.Sprintf("Please login using %s", u.Provider))
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		s.recordFailure(ctx, key, "bad_password")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if u.Status == model.StatusInactive {
		return nil, apperr.Forbidden(msgInactive)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, key); err != nil {
			log.Warn("Failed to reset login throttle", zap.Error(err))
		}
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	log.Info("User logged in", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return pair, nil
}

func (s *Service) recordFailure(ctx context.Context, key, reason string) {
	metrics.IncrementLoginFailure(reason)
	if s.throttle == nil {
		return
	}
	if _, err := s.throttle.IncrementAndGet(ctx, key); err != nil {
		s.logger.Warn("Failed to record login failure", zap.Error(err))
	}
}

// issueTokens 签发一对新 token 并保存 refresh token
func (s *Service) issueTokens(ctx context.Context, u *model.User) (*TokenPair, error) {
	claims := util.Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
		Name:   u.Name,
	}

	claims.Type = util.TokenAccess
	access, err := util.GenerateToken(claims, s.jwt.Secret, s.jwt.AccessTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	claims.Type = util.TokenRefresh
	refresh, err := util.GenerateToken(claims, s.jwt.Secret, s.jwt.RefreshTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.users.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, Role: u.Role}, nil
}

// Refresh 轮换 token；校验失败时清除已保存的 refresh token
func (s *Service) Refresh(ctx context.Context, token string) (*TokenPair, error) {
	if token == "" {
		return nil, apperr.Unauthorized("No refresh token provided")
	}

	u, err := s.users.FindByRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Unauthorized(msgInvalidRefresh)
	}

	claims, err := util.ParseToken(token, s.jwt.Secret, util.TokenRefresh)
	if err != nil || claims.UserID != u.ID {
		s.clearRefresh(ctx, u.ID)
		return nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	if u.Status == model.StatusInactive {
		s.clearRefresh(ctx, u.ID)
		return nil, apperr.Forbidden(msgInactive)
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	pair.Role = ""
	return pair, nil
}

func (s *Service) clearRefresh(ctx context.Context, userID int64) {
	if err := s.users.SetRefreshToken(ctx, userID, ""); err != nil {
		s.logger.Error("Failed to clear refresh token", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Logout 清除保存的 refresh token
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.users.SetRefreshToken(ctx, userID, "")
}

// LogoutToken 根据 access token 登出，token 缺失或无效时什么都不做
func (s *Service) LogoutToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := util.ParseToken(token, s.jwt.Secret, util.TokenAccess)
	if err != nil {
		return nil
	}
	return s.Logout(ctx, claims.UserID)
}

// ParseAccessToken 认证中间件使用
func (s *Service) ParseAccessToken(token string) (rbac.Actor, error) {
	claims, err := util.ParseToken(token, s.jwt.Secret, util.TokenAccess)
	if err != nil {
		return rbac.Actor{}, err
	}
	role, ok := rbac.ParseRole(claims.Role)
	if !ok {
		return rbac.Actor{}, util.ErrWrongTokenType
	}
	return rbac.Actor{ID: claims.UserID, Email: claims.Email, Role: role, Name: claims.Name}, nil
}

// ForgotPassword 未知邮箱静默返回，避免泄露账号是否存在
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}

	token, err := util.RandomHex(32)
	if err != nil {
		return apperr.Internal(err)
	}
	exp := time.Now().Add(resetTokenTTL)

	event := &mqcontracts.PasswordResetRequestedPayload{
		EventID:   uuid.NewString(),
		TraceID:   trace.FromContext(ctx),
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		ResetURL:  fmt.Sprintf("%s/reset-password/%s", s.frontendURL, token),
		ExpiresAt: exp,
	}
	return s.users.SetResetToken(ctx, u.ID, token, exp, event)
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	u, err := s.users.FindByResetToken(ctx, token)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.BadRequest("Invalid or expired token")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return apperr.Internal(err)
	}
	return s.users.ResetPassword(ctx, u.ID, hash)
}

// GoogleLogin 校验前端拿到的 Google ID token
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*TokenPair, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, apperr.BadRequest("Google token is required")
	}
	if s.google == nil {
		return nil, apperr.New(http.StatusInternalServerError, "Server misconfiguration")
	}

	profile, err := s.google.VerifyIDToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGoogleToken) {
			return nil, apperr.BadRequest("Invalid Google token")
		}
		s.logger.Error("Google login failed", zap.Error(err))
		return nil, apperr.Wrap(http.StatusInternalServerError, "Failed to authenticate with Google", err)
	}
	return s.loginGoogleProfile(ctx, profile)
}

// GoogleAuthURL 跳转到 Google 授权页
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", apperr.New(http.StatusInternalServerError, "Server misconfiguration")
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleCallback 用授权码换取用户信息并返回前端回调地址
func (s *Service) GoogleCallback(ctx context.Context, code string) string {
	failure := s.frontendURL + "/login?error=oauth"
	if s.google == nil || code == "" {
		return failure
	}

	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("Google code exchange failed", zap.Error(err))
		return failure
	}
	pair, err := s.loginGoogleProfile(ctx, profile)
	if err != nil {
		s.logger.Warn("Google callback login failed", zap.Error(err))
		return failure
	}
	return s.frontendURL + "/auth/callback?token=" + pair.AccessToken
}

func (s *Service) loginGoogleProfile(ctx context.Context, p *GoogleProfile) (*TokenPair, error) {
	email := normalizeEmail(p.Email)
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		name := p.Name
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		u = &model.User{
			Email:    email,
			Name:     name,
			Provider: model.ProviderGoogle,
			Role:     rbac.RoleUser,
			Status:   model.StatusActive,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, err
		}
		s.logger.Info("Google user created", zap.Int64("user_id", u.ID))
	}
	if u.Status == model.StatusInactive {
		return nil, apperr.Forbidden(msgInactive)
	}
	return s.issueTokens(ctx, u)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
