package util

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType 区分 access / refresh token
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// ErrWrongTokenType refresh token 不能当 access token 用，反之亦然
var ErrWrongTokenType = errors.New("unexpected token type")

// Claims token 中携带的用户信息
type Claims struct {
	UserID    int64
	Email     string
	Role      string
	Name      string
	Type      TokenType
	ID        string
	ExpiresAt time.Time
}

// GenerateToken 签发 HS256 token，每个 token 带唯一 jti
func GenerateToken(c Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    c.UserID,
		"email": c.Email,
		"role":  c.Role,
		"typ":   string(c.Type),
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if c.Name != "" {
		claims["name"] = c.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 校验签名、过期时间和 token 类型
func ParseToken(tokenStr, secret string, want TokenType) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenMalformed
	}

	idFloat, ok := mc["id"].(float64)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	c := &Claims{UserID: int64(idFloat)}
	c.Email, _ = mc["email"].(string)
	c.Role, _ = mc["role"].(string)
	c.Name, _ = mc["name"].(string)
	c.ID, _ = mc["jti"].(string)
	typ, _ := mc["typ"].(string)
	c.Type = TokenType(typ)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	if want != "" && c.Type != want {
		return nil, ErrWrongTokenType
	}
	return c, nil
}

// ExtractToken 从 Authorization: Bearer <token> 中取 token
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Fields(auth)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
