package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	pkce    bool
	profile oauth.Profile
	token   oauth.Token

	mu        sync.Mutex
	verifiers []string
	revoked   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) UsesPKCE() bool { return f.pkce }

func (f *fakeProvider) AuthCodeURL(req oauth.AuthRequest) string {
	q := url.Values{"state": {req.State}}
	if req.CodeVerifier != "" {
		q.Set("code_challenge", "set")
	}
	return "https://provider.test/authorize?" + q.Encode()
}

func (f *fakeProvider) Exchange(_ context.Context, code, verifier string) (*oauth.Token, error) {
	if code != "good-code" {
		return nil, apperrors.WrapError(apperrors.ErrProviderExchange, errors.New("invalid_grant"))
	}
	f.mu.Lock()
	f.verifiers = append(f.verifiers, verifier)
	f.mu.Unlock()
	tok := f.token
	return &tok, nil
}

func (f *fakeProvider) Profile(context.Context, *oauth.Token) (*oauth.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeProvider) Refresh(_ context.Context, refreshToken string) (*oauth.Token, error) {
	return &oauth.Token{AccessToken: "refreshed-" + refreshToken, TokenType: "Bearer"}, nil
}

func (f *fakeProvider) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeProvider) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func googleFake() *fakeProvider {
	return &fakeProvider{
		name: constants.ProviderGoogle,
		profile: oauth.Profile{
			Provider:       constants.ProviderGoogle,
			ProviderUserID: "g-123",
			Email:          "Social@Example.com",
			EmailVerified:  true,
			FirstName:      "So",
			LastName:       "Cial",
		},
		token: oauth.Token{AccessToken: "g-access", RefreshToken: "g-refresh", TokenType: "Bearer"},
	}
}

// login runs authorize and callback end to end.
func login(t *testing.T, env *testEnv, provider string) (*OAuthLoginResult, error) {
	t.Helper()
	ctx := context.Background()

	auth, err := env.oauth.Authorize(ctx, provider, "https://app.example.com/done")
	require.NoError(t, err)
	state, err := oauth.DecodeState(auth.StateCookie)
	require.NoError(t, err)

	return env.oauth.Callback(ctx, CallbackInput{
		Provider:    provider,
		Code:        "good-code",
		State:       state.State,
		StateCookie: auth.StateCookie,
	})
}

func TestOAuthAuthorize(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(&fakeProvider{name: constants.ProviderTwitter, pkce: true})
	ctx := context.Background()

	_, err := env.oauth.Authorize(ctx, "myspace", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidProvider)
	_, err = env.oauth.Authorize(ctx, "github", "")
	assert.ErrorIs(t, err, apperrors.ErrProviderNotConfigured)
	_, err = env.oauth.Authorize(ctx, "telegram", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidProvider)
	_, err = env.oauth.Authorize(ctx, "twitter", "https://evil.example.net/")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	res, err := env.oauth.Authorize(ctx, "Twitter", "https://app.example.com/after")
	require.NoError(t, err)
	assert.Equal(t, constants.ProviderTwitter, res.Provider)
	assert.False(t, res.FormPost)

	state, err := oauth.DecodeState(res.StateCookie)
	require.NoError(t, err)
	assert.Contains(t, res.URL, url.Values{"state": {state.State}}.Encode())
	assert.Contains(t, res.URL, "code_challenge")
	assert.NotEmpty(t, state.CodeVerifier)
	assert.Equal(t, "https://app.example.com/after", state.RedirectURL)
}

func TestOAuthCallbackCreatesThenReusesUser(t *testing.T) {
	env := newTestEnv(t)
	google := googleFake()
	env.registry.Register(google)

	first, err := login(t, env, "google")
	require.NoError(t, err)
	assert.True(t, first.IsNewUser)
	assert.Equal(t, "https://app.example.com/done", first.RedirectURL)
	assert.Equal(t, "social@example.com", first.User.Email)
	assert.True(t, first.User.IsVerified)
	assert.NotNil(t, first.User.EmailVerifiedAt)
	assert.False(t, first.User.HasPassword())
	assert.NotEmpty(t, first.Tokens.AccessToken)

	google.token.AccessToken = "g-access-2"
	second, err := login(t, env, "google")
	require.NoError(t, err)
	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.User.ID, second.User.ID)

	accounts, err := env.oauth.Accounts(context.Background(), first.User.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "g-access-2", accounts[0].AccessToken)
	assert.Equal(t, "g-refresh", accounts[0].RefreshToken)

	env.settle(t)
	assert.Len(t, env.mailer.byTemplate(mail.TemplateWelcome), 1)
	assert.Len(t, env.mailer.byTemplate(mail.TemplateLoginAlert), 1)
	assert.Contains(t, env.publisher.types(), queue.EventOAuthLinked)
}

func TestOAuthCallbackRejections(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(googleFake())
	ctx := context.Background()

	auth, err := env.oauth.Authorize(ctx, "google", "")
	require.NoError(t, err)
	state, err := oauth.DecodeState(auth.StateCookie)
	require.NoError(t, err)

	_, err = env.oauth.Callback(ctx, CallbackInput{Provider: "google", Error: "access_denied", StateCookie: auth.StateCookie})
	assert.ErrorIs(t, err, apperrors.ErrOAuthDenied)

	_, err = env.oauth.Callback(ctx, CallbackInput{Provider: "google", State: state.State, StateCookie: auth.StateCookie})
	assert.ErrorIs(t, err, apperrors.ErrMissingCode)

	_, err = env.oauth.Callback(ctx, CallbackInput{Provider: "google", Code: "good-code", State: "forged", StateCookie: auth.StateCookie})
	assert.ErrorIs(t, err, apperrors.ErrOAuthStateMismatch)

	_, err = env.oauth.Callback(ctx, CallbackInput{Provider: "google", Code: "bad-code", State: state.State, StateCookie: auth.StateCookie})
	assert.ErrorIs(t, err, apperrors.ErrProviderExchange)

	env.oauth.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = env.oauth.Callback(ctx, CallbackInput{Provider: "google", Code: "good-code", State: state.State, StateCookie: auth.StateCookie})
	assert.ErrorIs(t, err, apperrors.ErrOAuthStateMismatch)
}

func TestOAuthPKCEVerifierReachesExchange(t *testing.T) {
	env := newTestEnv(t)
	twitter := &fakeProvider{
		name: constants.ProviderTwitter,
		pkce: true,
		profile: oauth.Profile{
			Provider:       constants.ProviderTwitter,
			ProviderUserID: "tw-1",
		},
	}
	env.registry.Register(twitter)

	res, err := login(t, env, "twitter")
	require.NoError(t, err)
	assert.Equal(t, constants.SyntheticEmail(constants.ProviderTwitter, "tw-1"), res.User.Email)
	assert.Nil(t, res.User.EmailVerifiedAt)

	require.Len(t, twitter.verifiers, 1)
	assert.NotEmpty(t, twitter.verifiers[0])

	env.settle(t)
	assert.Empty(t, env.mailer.byTemplate(mail.TemplateWelcome), "synthetic addresses are never mailed")
}

func TestOAuthLinksExistingUserByVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(googleFake())
	existing := env.verifiedUser(t, "social@example.com", "password123")

	res, err := login(t, env, "google")
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, existing.ID, res.User.ID)

	_, _, err = env.auth.Login(context.Background(), "social@example.com", "password123")
	assert.NoError(t, err, "password login keeps working after linking")
}

func TestOAuthRefusesUnvouchedEmail(t *testing.T) {
	env := newTestEnv(t)
	google := googleFake()
	google.profile.EmailVerified = false
	env.registry.Register(google)
	env.verifiedUser(t, "social@example.com", "password123")

	_, err := login(t, env, "google")
	assert.ErrorIs(t, err, apperrors.ErrEmailExists)
}

func TestOAuthLinkVerifiesPendingSignup(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(googleFake())

	res, err := env.auth.Signup(context.Background(), SignupInput{Email: "social@example.com", Password: "password123"})
	require.NoError(t, err)

	linked, err := login(t, env, "google")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, linked.User.ID)

	stored := env.users.get(t, res.User.ID)
	assert.True(t, stored.IsVerified)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.OTPCode)
}

func TestOAuthLinkDropsPendingSignupPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(googleFake())
	ctx := context.Background()

	// someone else registered the address first and never verified it
	res, err := env.auth.Signup(ctx, SignupInput{Email: "social@example.com", Password: "squatter-pw"})
	require.NoError(t, err)

	linked, err := login(t, env, "google")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, linked.User.ID)
	assert.False(t, linked.User.HasPassword())

	stored := env.users.get(t, res.User.ID)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.Password)

	_, tokens, err := env.auth.Login(ctx, "social@example.com", "squatter-pw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	assert.Nil(t, tokens)

	me, err := env.auth.Me(ctx, res.User.ID)
	require.NoError(t, err)
	assert.False(t, me.HasPassword())
}

func TestOAuthFindOrCreateConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := googleFake()

	const callers = 16
	var (
		wg      sync.WaitGroup
		ids     = make([]string, callers)
		created = make([]bool, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			profile := base.profile
			token := base.token
			user, isNew, err := env.oauth.FindOrCreate(ctx, &profile, &token)
			errs[i] = err
			created[i] = isNew
			if user != nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	newUsers := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			newUsers++
		}
	}
	assert.Equal(t, 1, newUsers)

	accounts, err := env.oauth.Accounts(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestOAuthRedirectAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		target  string
		want    bool
	}{
		{"exact origin", []string{"https://app.example.com"}, "https://app.example.com/done", true},
		{"trailing slash entry", []string{"https://app.example.com/"}, "https://app.example.com/a/b?x=1", true},
		{"host suffix confusion", []string{"https://app.example.com"}, "https://app.example.com.evil.io/steal", false},
		{"userinfo confusion", []string{"https://app.example.com"}, "https://app.example.com@evil.io/steal", false},
		{"port mismatch", []string{"https://app.example.com"}, "https://app.example.com:8443/done", false},
		{"scheme mismatch", []string{"https://app.example.com"}, "http://app.example.com/done", false},
		{"path prefix", []string{"https://app.example.com/oauth"}, "https://app.example.com/oauth/done", true},
		{"path sibling", []string{"https://app.example.com/oauth"}, "https://app.example.com/oauth-evil", false},
		{"host case", []string{"https://App.Example.com"}, "https://app.example.com/", true},
		{"relative target", []string{"https://app.example.com"}, "/done", false},
		{"javascript target", []string{"https://app.example.com"}, "javascript:alert(1)", false},
		{"nothing configured", nil, "https://app.example.com/done", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &OAuthService{allowedRedirects: tt.allowed}
			assert.Equal(t, tt.want, s.redirectAllowed(tt.target))
		})
	}
}

func TestNewOAuthServiceStateTTLDefault(t *testing.T) {
	s := NewOAuthService(OAuthDeps{})
	assert.Equal(t, 15*time.Minute, s.stateTTL)
}

func TestOAuthUnlinkRevokesProviderToken(t *testing.T) {
	env := newTestEnv(t)
	google := googleFake()
	env.registry.Register(google)
	ctx := context.Background()

	res, err := login(t, env, "google")
	require.NoError(t, err)

	assert.ErrorIs(t, env.oauth.Unlink(ctx, res.User.ID, "github"), apperrors.ErrAccountNotFound)
	assert.ErrorIs(t, env.oauth.Unlink(ctx, res.User.ID, "myspace"), apperrors.ErrInvalidProvider)

	require.NoError(t, env.oauth.Unlink(ctx, res.User.ID, "google"))
	env.settle(t)
	assert.Equal(t, []string{"g-access"}, google.revokedTokens())

	accounts, err := env.oauth.Accounts(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.ErrorIs(t, env.oauth.Unlink(ctx, res.User.ID, "google"), apperrors.ErrAccountNotFound)
}

func TestOAuthRefreshProviderToken(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(googleFake())
	ctx := context.Background()

	res, err := login(t, env, "google")
	require.NoError(t, err)

	account, err := env.oauth.RefreshProviderToken(ctx, res.User.ID, "google")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-g-refresh", account.AccessToken)
	assert.Equal(t, "g-refresh", account.RefreshToken)

	_, err = env.oauth.RefreshProviderToken(ctx, res.User.ID, "github")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func signTelegram(botToken string, data map[string]string) map[string]string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + data[k]
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))

	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["hash"] = hex.EncodeToString(mac.Sum(nil))
	return out
}

func TestTelegramLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.oauth.TelegramLogin(ctx, map[string]string{"id": "1"})
	assert.ErrorIs(t, err, apperrors.ErrProviderNotConfigured)

	env.registry.SetTelegram(oauth.NewTelegram("bot-token", time.Hour))
	payload := signTelegram("bot-token", map[string]string{
		"id":         "42",
		"first_name": "Tele",
		"username":   "tele42",
		"auth_date":  strconv.FormatInt(time.Now().Unix(), 10),
	})

	res, err := env.oauth.TelegramLogin(ctx, payload)
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "telegram_42@telegram.oauth", res.User.Email)
	assert.True(t, res.User.IsVerified)

	again, err := env.oauth.TelegramLogin(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)

	payload["first_name"] = "Mallory"
	_, err = env.oauth.TelegramLogin(ctx, payload)
	assert.ErrorIs(t, err, apperrors.ErrTelegramAuthInvalid)
}
