// Package oauth adapts third-party identity providers to one Profile shape.
// Authorization-code providers share the golang.org/x/oauth2 plumbing in
// base; Telegram's login widget is verified separately.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

// Profile is the provider-neutral identity.
type Profile struct {
	Provider       string         `json:"provider"`
	ProviderUserID string         `json:"provider_user_id"`
	Email          string         `json:"email"`
	EmailVerified  bool           `json:"email_verified"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	FullName       string         `json:"full_name"`
	AvatarURL      string         `json:"avatar_url,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	IDToken      string
	ExpiresAt    *time.Time
}

type AuthRequest struct {
	State        string
	CodeVerifier string
}

type Provider interface {
	Name() string
	AuthCodeURL(req AuthRequest) string
	Exchange(ctx context.Context, code, verifier string) (*Token, error)
	Profile(ctx context.Context, token *Token) (*Profile, error)
}

// Refresher is implemented by providers that issue refresh tokens.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// Revoker is implemented by providers with a token revocation endpoint.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// PKCE is implemented by providers that require a code verifier.
type PKCE interface {
	UsesPKCE() bool
}

// base carries the endpoint config and the shared client pool for an adapter.
// It is read-only once the adapter constructor returns.
type base struct {
	name       string
	conf       *oauth2.Config
	pool       *pool.ConnectionPool
	authParams []oauth2.AuthCodeOption
	pkce       bool
}

func newBase(name string, conf *oauth2.Config, p *pool.ConnectionPool, params ...oauth2.AuthCodeOption) base {
	if p == nil {
		p = pool.NewConnectionPool(pool.DefaultPoolConfig(), nil)
	}
	return base{name: name, conf: conf, pool: p, authParams: params}
}

func (b *base) Name() string { return b.name }

func (b *base) AuthCodeURL(req AuthRequest) string {
	opts := append([]oauth2.AuthCodeOption{}, b.authParams...)
	if b.pkce && req.CodeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(req.CodeVerifier))
	}
	return b.conf.AuthCodeURL(req.State, opts...)
}

// tokenContext hands the pooled client for the token endpoint to x/oauth2.
func (b *base) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.pool.ClientFor(b.conf.Endpoint.TokenURL))
}

func (b *base) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := b.conf.Exchange(b.tokenContext(ctx), code, opts...)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrProviderExchange, fmt.Errorf("%s: %w", b.name, err))
	}
	return fromOAuth2(tok), nil
}

func (b *base) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	src := b.conf.TokenSource(b.tokenContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrProviderExchange, fmt.Errorf("%s refresh: %w", b.name, err))
	}
	return fromOAuth2(tok), nil
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		out.ExpiresAt = &expiry
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out
}

// getJSON performs an authenticated GET and decodes the body into both out
// and raw (when non-nil).
func (b *base) getJSON(ctx context.Context, rawURL, accessToken string, headers map[string]string, out any, raw *map[string]any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set(constants.HeaderAuthorization, constants.BearerPrefix+accessToken)
	req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := b.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.name, err)
	}
	if raw != nil {
		_ = json.Unmarshal(body, raw)
	}
	return nil
}

func (b *base) do(req *http.Request) ([]byte, error) {
	resp, err := b.pool.ClientFor(req.URL.String()).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s responded %d: %s", b.name, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func (b *base) profileError(err error) error {
	return apperrors.WrapError(apperrors.ErrProviderProfile, fmt.Errorf("%s: %w", b.name, err))
}

// postForm is used by revocation endpoints. Basic client auth is applied
// when basicAuth is set.
func (b *base) postForm(ctx context.Context, rawURL string, form map[string]string, basicAuth bool) error {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeForm)
	if basicAuth {
		req.SetBasicAuth(b.conf.ClientID, b.conf.ClientSecret)
	}
	_, err = b.do(req)
	return err
}

// splitName splits "Jane van Dyke" into "Jane" and "van Dyke".
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
