package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"taskflow/pkg/config"
)

var ErrInvalidGoogleToken = errors.New("invalid google token")

const (
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	defaultUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleProfile 登录需要的 Google 账号信息
type GoogleProfile struct {
	Email string
	Name  string
}

// GoogleProvider ID token 校验和授权码流程
type GoogleProvider interface {
	VerifyIDToken(ctx context.Context, idToken string) (*GoogleProfile, error)
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*GoogleProfile, error)
}

type GoogleClient struct {
	oauth        *oauth2.Config
	clientID     string
	httpClient   *http.Client
	tokenInfoURL string
	userInfoURL  string
}

// NewGoogleClient 未配置 client id 时返回 nil
func NewGoogleClient(cfg config.GoogleConfig) *GoogleClient {
	if cfg.ClientID == "" {
		return nil
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		clientID:     cfg.ClientID,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		tokenInfoURL: defaultTokenInfoURL,
		userInfoURL:  defaultUserInfoURL,
	}
}

type tokenInfo struct {
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

// VerifyIDToken 通过 tokeninfo 接口校验，audience 必须是本应用
func (g *GoogleClient) VerifyIDToken(ctx context.Context, idToken string) (*GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.tokenInfoURL+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, ErrInvalidGoogleToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo status %d", resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo: %w", err)
	}
	if info.Aud != g.clientID || info.Email == "" || info.EmailVerified == "false" {
		return nil, ErrInvalidGoogleToken
	}
	return &GoogleProfile{Email: info.Email, Name: info.Name}, nil
}

func (g *GoogleClient) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange 授权码换 token 后读取 userinfo
func (g *GoogleClient) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	resp, err := g.oauth.Client(ctx, tok).Get(g.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, ErrInvalidGoogleToken
	}
	return &GoogleProfile{Email: info.Email, Name: info.Name}, nil
}
