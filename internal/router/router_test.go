package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/internal/handler"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/internal/service"
	"github.com/Payphone-Digital/auth-service/pkg/cache"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine   *gin.Engine
	users    *memUsers
	mailer   *recordingMailer
	notifier *service.Notifier
	registry *oauth.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.RegisterGin())

	cfg := &config.Config{
		App: config.AppConfig{Name: "auth-test", Environment: "test"},
		Cookie: config.CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			SameSite:    "lax",
		},
		RateLimit: config.RateLimitConfig{Request: 1000, Duration: 60, AuthRequest: 1000, AuthDuration: 60},
	}

	users := newMemUsers()
	mailer := &recordingMailer{codes: make(map[string]string)}
	codec := newTestCodec(t)
	revocation := service.NewRevocationStore(&memRevocations{entries: make(map[string]time.Time)}, codec)
	notifier := service.NewNotifier(mailer, nopPublisher{}, "Auth Test", 15*time.Minute)

	c, err := cache.New(64)
	require.NoError(t, err)
	profiles := service.NewUserService(users, c, time.Minute)

	authService := service.NewAuthService(service.AuthDeps{
		Users:      users,
		Profiles:   profiles,
		Codec:      codec,
		Sessions:   service.NewSessionTokens(codec, 30*time.Minute, time.Hour),
		Revocation: revocation,
		Hasher:     plainHasher{},
		Notifier:   notifier,
		OTPExpiry:  15 * time.Minute,
	})
	registry := oauth.NewRegistry()
	oauthService := service.NewOAuthService(service.OAuthDeps{
		Registry: registry,
		Accounts: noAccounts{},
		Users:    users,
		Profiles: profiles,
		Auth:     authService,
		Notifier: notifier,
		StateTTL: 10 * time.Minute,
	})

	jar := cookie.New(cfg.Cookie)
	r := NewRouter(
		handler.NewAuthHandler(authService, jar, cfg.Cookie),
		handler.NewOAuthHandler(oauthService, jar, cfg.Cookie, 0),
		handler.NewHealthHandler(handler.HealthDeps{
			Database: handler.PingFunc(func(context.Context) error { return nil }),
		}),
		middleware.NewAuthMiddleware(codec, revocation, authService, jar, cfg.Cookie),
		cfg,
	)

	return &testServer{engine: r.SetupRoutes(), users: users, mailer: mailer, notifier: notifier, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// settle waits for background mail so codes can be read back.
func (s *testServer) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.notifier.Wait(ctx))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signupAndVerify registers email and completes the OTP step.
func (s *testServer) signupAndVerify(t *testing.T, email, password string) map[string]any {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":      email,
		"password":   password,
		"first_name": "Jane",
		"last_name":  "Doe",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	signup := decode(t, w)
	assert.Equal(t, true, signup["requires_otp"])
	assert.NotContains(t, signup, "otp_code")

	s.settle(t)
	code := s.mailer.code(mail.TemplateOTP, email)
	require.Len(t, code, 6)

	w = s.do(t, http.MethodPost, "/api/v1/auth/verify-otp", signup["session_token"].(string), map[string]string{"otp": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)
}

func TestSignupVerifyAndMe(t *testing.T) {
	s := newTestServer(t)

	verified := s.signupAndVerify(t, "jane@example.com", "password123")
	token, _ := verified["token"].(string)
	require.NotEmpty(t, token)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "jane@example.com", data["email"])
	assert.Equal(t, true, data["is_verified"])
	assert.Equal(t, true, data["has_password"])

	w = s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":      "jane@example.com",
		"password":   "password123",
		"first_name": "Jane",
		"last_name":  "Doe",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignupValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INVALID_INPUT", body["code"])
	assert.NotEmpty(t, body["details"])
}

func TestVerifyOTPRejectsBadCode(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":      "otp@example.com",
		"password":   "password123",
		"first_name": "O",
		"last_name":  "T",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	session := decode(t, w)["session_token"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/auth/verify-otp", session, map[string]string{"otp": "12ab56"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{"otp": "123456"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRefreshLogout(t *testing.T) {
	s := newTestServer(t)
	s.signupAndVerify(t, "login@example.com", "password123")

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "login@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "LOGIN@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode(t, w)
	access := login["token"].(string)
	assert.Equal(t, "Bearer "+access, w.Header().Get("Authorization"))
	assert.NotContains(t, login, "refresh_token")

	refresh := responseCookie(w, "refresh_token")
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)

	// cookie clients get the rotated token as a cookie only
	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", nil, refresh)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, decode(t, w), "refresh_token")
	rotated := responseCookie(w, "refresh_token")
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	// the old refresh token is spent
	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// body clients get it back in the body
	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": rotated.Value})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["refresh_token"])

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_REVOKED", decode(t, w)["code"])
}

func TestSilentRefreshOnProtectedRoute(t *testing.T) {
	s := newTestServer(t)
	s.signupAndVerify(t, "silent@example.com", "password123")

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "silent@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	refresh := responseCookie(w, "refresh_token")
	require.NotNil(t, refresh)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil, refresh)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Authorization"), "Bearer "))
	assert.NotNil(t, responseCookie(w, "access_token"))
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	token := s.signupAndVerify(t, "change@example.com", "password123")["token"].(string)

	w := s.do(t, http.MethodPost, "/api/v1/auth/change-password", token, map[string]string{
		"current_password": "nope-nope",
		"new_password":     "newpassword1",
		"confirm_password": "newpassword1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/change-password", token, map[string]string{
		"current_password": "password123",
		"new_password":     "newpassword1",
		"confirm_password": "newpassword1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "change@example.com",
		"password": "newpassword1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	s.signupAndVerify(t, "reset@example.com", "password123")

	// unknown emails look the same as known ones
	w := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["email_sent"])

	w = s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "reset@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "otp_code")

	s.settle(t)
	code := s.mailer.code(mail.TemplatePasswordReset, "reset@example.com")
	require.Len(t, code, 6)

	w = s.do(t, http.MethodPost, "/api/v1/auth/forgot-password/verify-otp", "", map[string]string{
		"email": "reset@example.com",
		"otp":   code,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verified := decode(t, w)
	assert.Equal(t, true, verified["otp_verified"])
	session := verified["session_token"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", session, map[string]string{
		"password":         "brandnew123",
		"password_confirm": "different123",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", session, map[string]string{
		"password":         "brandnew123",
		"password_confirm": "brandnew123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reset := decode(t, w)
	assert.Equal(t, true, reset["password_updated"])
	assert.NotEmpty(t, reset["token"])

	// the reset session is single use
	w = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", session, map[string]string{
		"password":         "another123",
		"password_confirm": "another123",
	})
	assert.NotEqual(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "reset@example.com",
		"password": "brandnew123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/auth/oauth/accounts"},
		{http.MethodDelete, "/api/v1/auth/oauth/google/unlink"},
	} {
		w := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestOAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/oauth/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "providers")

	w = s.do(t, http.MethodGet, "/api/v1/auth/oauth/myspace", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/oauth/google", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PROVIDER_NOT_CONFIGURED", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/auth/oauth/google/callback?"+url.Values{"error": {"access_denied"}}.Encode(), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type redirectProvider struct{}

func (redirectProvider) Name() string { return constants.ProviderGitHub }

func (redirectProvider) AuthCodeURL(req oauth.AuthRequest) string {
	return "https://github.example.com/authorize?" + url.Values{"state": {req.State}}.Encode()
}

func (redirectProvider) Exchange(context.Context, string, string) (*oauth.Token, error) {
	return nil, errors.New("not used")
}

func (redirectProvider) Profile(context.Context, *oauth.Token) (*oauth.Profile, error) {
	return nil, errors.New("not used")
}

func TestOAuthAuthorizeRedirect(t *testing.T) {
	s := newTestServer(t)
	s.registry.Register(redirectProvider{})

	w := s.do(t, http.MethodGet, "/api/v1/auth/oauth/GitHub", "", nil)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://github.example.com/authorize?state="))

	state := responseCookie(w, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)

	// a callback whose state does not match the cookie is refused
	w = s.do(t, http.MethodGet, "/api/v1/auth/oauth/github/callback?code=abc&state=forged", "", nil, state)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE_PARAM", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/auth/oauth/github/callback?code=abc", "", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
