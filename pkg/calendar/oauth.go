package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// ErrNotConnected 管理员还没有完成 Google 授权
var ErrNotConnected = errors.New("google calendar is not connected")

// CalendarScope 读写日历事件
const CalendarScope = "https://www.googleapis.com/auth/calendar.events"

const accessTokenKey = "google_access_token"

// OAuthConfig Google OAuth 客户端配置
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// TokenURL 为空时使用 Google 官方地址
	TokenURL string
}

// OAuth 管理 admin_tokens 中的 Google 令牌
//
// 访问令牌在进程内缓存到过期前一分钟；过期后用 refresh token 刷新并写回数据库
type OAuth struct {
	db     database.DatabaseInterface
	conf   *oauth2.Config
	tokens *cache.Cache
	client *http.Client
	now    func() time.Time
}

// NewOAuth 创建 OAuth 管理器
func NewOAuth(db database.DatabaseInterface, cfg OAuthConfig) *OAuth {
	endpoint := endpoints.Google
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 15 * time.Second

	return &OAuth{
		db: db,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{CalendarScope},
		},
		tokens: cache.New(cache.NoExpiration, 10*time.Minute),
		client: client,
		now:    time.Now,
	}
}

// AuthCodeURL 管理后台跳转 Google 授权页的地址（离线授权，强制同意以拿到 refresh token）
func (o *OAuth) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (o *OAuth) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.client)
}

// Exchange 用授权码换取令牌并保存到 admin_tokens
func (o *OAuth) Exchange(ctx context.Context, code, redirectURI string) (*models.AdminToken, error) {
	conf := *o.conf
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}

	tok, err := conf.Exchange(o.httpContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange google code: %w", err)
	}

	stored, err := LoadAdminToken(ctx, o.db)
	if err != nil {
		return nil, err
	}
	applyToken(stored, tok)
	if err := SaveAdminToken(ctx, o.db, stored); err != nil {
		return nil, err
	}
	o.tokens.Delete(accessTokenKey)

	log.Info().
		Bool("has_refresh_token", stored.GoogleRefreshToken != "").
		Msg("🔑 Google Calendar connected")
	return stored, nil
}

// AccessToken 返回有效的访问令牌，必要时刷新
func (o *OAuth) AccessToken(ctx context.Context) (string, error) {
	if v, ok := o.tokens.Get(accessTokenKey); ok {
		return v.(string), nil
	}

	stored, err := LoadAdminToken(ctx, o.db)
	if err != nil {
		return "", err
	}
	if !stored.CalendarConnected() {
		return "", ErrNotConnected
	}

	current := &oauth2.Token{
		AccessToken:  stored.GoogleAccessToken,
		RefreshToken: stored.GoogleRefreshToken,
		TokenType:    "Bearer",
	}
	if stored.TokenExpiry != nil {
		current.Expiry = *stored.TokenExpiry
	}

	fresh, err := o.conf.TokenSource(o.httpContext(ctx), current).Token()
	if err != nil {
		return "", fmt.Errorf("refresh google token: %w", err)
	}

	if fresh.AccessToken != stored.GoogleAccessToken {
		applyToken(stored, fresh)
		if err := SaveAdminToken(ctx, o.db, stored); err != nil {
			return "", err
		}
		log.Debug().Time("expiry", fresh.Expiry).Msg("🔄 Google access token refreshed")
	}

	if !fresh.Expiry.IsZero() {
		if ttl := fresh.Expiry.Sub(o.now()) - time.Minute; ttl > 0 {
			o.tokens.Set(accessTokenKey, fresh.AccessToken, ttl)
		}
	}
	return fresh.AccessToken, nil
}

// Forget drops the cached access token.
func (o *OAuth) Forget() {
	o.tokens.Delete(accessTokenKey)
}

func applyToken(stored *models.AdminToken, tok *oauth2.Token) {
	stored.GoogleAccessToken = tok.AccessToken
	// Google 只在首次授权时返回 refresh token
	if tok.RefreshToken != "" {
		stored.GoogleRefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		stored.TokenExpiry = nil
	} else {
		expiry := tok.Expiry.UTC()
		stored.TokenExpiry = &expiry
	}
}

// LoadAdminToken 读取集成配置单例，不存在时返回未保存的空记录
func LoadAdminToken(ctx context.Context, db database.DatabaseInterface) (*models.AdminToken, error) {
	token := &models.AdminToken{}
	token.ID = models.AdminTokenID
	err := db.Get(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		fresh := &models.AdminToken{}
		fresh.ID = models.AdminTokenID
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load admin token: %w", err)
	}
	return token, nil
}

// SaveAdminToken 写入集成配置单例
func SaveAdminToken(ctx context.Context, db database.DatabaseInterface, token *models.AdminToken) error {
	token.ID = models.AdminTokenID
	if token.CreatedAt.IsZero() {
		if err := db.Insert(ctx, token); err != nil {
			return fmt.Errorf("create admin token: %w", err)
		}
		return nil
	}
	if err := db.Update(ctx, token); err != nil {
		return fmt.Errorf("update admin token: %w", err)
	}
	return nil
}
