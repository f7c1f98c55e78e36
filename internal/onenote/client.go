// Package onenote is a small Microsoft Graph OneNote client: per-user OAuth
// sessions and export of a page with its resources into a zip archive.
package onenote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/model"
	"onenote_feedback/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
	"gorm.io/gorm"
)

var (
	ErrNotSignedIn   = errors.New("onenote: user has not signed in")
	ErrUnauthorized  = errors.New("onenote: access token rejected")
	ErrPageNotFound  = errors.New("onenote: page not found")
	ErrNoArtifact    = errors.New("onenote: page export produced no content")
	ErrTokenCorrupt  = errors.New("onenote: stored token cannot be opened")
	ErrMissingConfig = errors.New("onenote: client id and redirect url are required")
)

// TokenStore persists sealed per-user tokens.
type TokenStore interface {
	FindByUser(ctx context.Context, userID uint) (*model.OneNoteToken, error)
	Save(ctx context.Context, token *model.OneNoteToken) error
	DeleteByUser(ctx context.Context, userID uint) error
}

// DownloadInfo describes a page archive written to local disk.
type DownloadInfo struct {
	Path      string
	Size      int64
	Resources int
}

type Client struct {
	oauth      *oauth2.Config
	apiBase    *url.URL
	tokens     TokenStore
	sealer     *Sealer
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient sets the transport used for Graph calls and token refresh.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint overrides the Microsoft identity endpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(c *Client) { c.oauth.Endpoint = ep }
}

func NewClient(cfg *config.OneNoteConfig, tokens TokenStore, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, ErrMissingConfig
	}
	base, err := url.Parse(strings.TrimRight(cfg.APIBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("onenote: invalid api base url: %w", err)
	}

	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		apiBase:    base,
		tokens:     tokens,
		sealer:     NewSealer(cfg.TokenKey),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SignInURL 返回 Microsoft 登录地址
func (c *Client) SignInURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange 用授权码换取令牌并保存
func (c *Client) Exchange(ctx context.Context, userID uint, code string) error {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("onenote: exchange code: %w", err)
	}
	return c.saveToken(ctx, userID, tok)
}

func (c *Client) SignOut(ctx context.Context, userID uint) error {
	return c.tokens.DeleteByUser(ctx, userID)
}

// HasValidSession 令牌未过期或可刷新即视为有效
func (c *Client) HasValidSession(ctx context.Context, userID uint) bool {
	tok, err := c.loadToken(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotSignedIn) {
			logger.Log.Warn("load onenote token failed", zap.Uint("user_id", userID), zap.Error(err))
		}
		return false
	}
	return tok.Valid() || tok.RefreshToken != ""
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) loadToken(ctx context.Context, userID uint) (*oauth2.Token, error) {
	rec, err := c.tokens.FindByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, err
	}

	access, err := c.sealer.Open(rec.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := c.sealer.Open(rec.RefreshToken)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, ErrNotSignedIn
	}

	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    rec.TokenType,
		Expiry:       rec.Expiry,
	}, nil
}

func (c *Client) saveToken(ctx context.Context, userID uint, tok *oauth2.Token) error {
	access, err := c.sealer.Seal(tok.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := c.sealer.Seal(tok.RefreshToken)
	if err != nil {
		return err
	}
	return c.tokens.Save(ctx, &model.OneNoteToken{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
}

// authorizedClient 刷新后的令牌会写回存储
func (c *Client) authorizedClient(ctx context.Context, userID uint, tok *oauth2.Token) *http.Client {
	octx := c.oauthContext(ctx)
	src := &persistingSource{
		base: c.oauth.TokenSource(octx, tok),
		last: tok.AccessToken,
		save: func(t *oauth2.Token) error { return c.saveToken(ctx, userID, t) },
	}
	return oauth2.NewClient(octx, oauth2.ReuseTokenSource(tok, src))
}

type persistingSource struct {
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token) error
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		if err := s.save(tok); err != nil {
			logger.Log.Warn("persist refreshed onenote token failed", zap.Error(err))
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
