package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	"github.com/Payphone-Digital/auth-service/pkg/cache"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*model.User)}
}

func (m *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(user)
}

func (m *memUsers) createLocked(user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func timePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}

func (m *memUsers) Update(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return repository.ErrNotFound
	}
	for col, v := range fields {
		switch col {
		case "password":
			if s, ok := v.(string); ok {
				u.Password = &s
			} else {
				u.Password = nil
			}
		case "is_active":
			u.IsActive = v.(bool)
		case "is_verified":
			u.IsVerified = v.(bool)
		case "email_verified_at":
			u.EmailVerifiedAt = timePtr(v)
		case "last_login_at":
			u.LastLoginAt = timePtr(v)
		case "otp_code":
			if s, ok := v.(string); ok {
				u.OTPCode = &s
			} else {
				u.OTPCode = nil
			}
		case "otp_expire_at":
			u.OTPExpireAt = timePtr(v)
		default:
			return errors.New("unexpected column " + col)
		}
	}
	return nil
}

func (m *memUsers) SetOTP(ctx context.Context, id, code string, expireAt time.Time) error {
	return m.Update(ctx, id, map[string]any{"otp_code": code, "otp_expire_at": expireAt})
}

func (m *memUsers) ConsumeOTP(_ context.Context, id, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.OTPMatches(code, now) {
		return false, nil
	}
	u.OTPCode, u.OTPExpireAt = nil, nil
	return true, nil
}

func (m *memUsers) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, u := range m.users {
		if !u.IsVerified && u.CreatedAt.Before(cutoff) {
			delete(m.users, id)
			n++
		}
	}
	return n, nil
}

func (m *memUsers) get(t *testing.T, id string) *model.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	require.True(t, ok, "user %s not stored", id)
	cp := *u
	return &cp
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type memAccounts struct {
	mu       sync.Mutex
	users    *memUsers
	nextID   uint
	accounts []*model.OAuthAccount
}

func newMemAccounts(users *memUsers) *memAccounts {
	return &memAccounts{users: users}
}

func (m *memAccounts) FindByProviderSubject(_ context.Context, provider, providerUserID string) (*model.OAuthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Provider == provider && a.ProviderUserID == providerUserID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) FindByUserAndProvider(_ context.Context, userID, provider string) (*model.OAuthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.Provider == provider {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) ListByUser(_ context.Context, userID string) ([]model.OAuthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OAuthAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAccounts) createLocked(account *model.OAuthAccount) error {
	for _, a := range m.accounts {
		if a.Provider == account.Provider && a.ProviderUserID == account.ProviderUserID {
			return repository.ErrDuplicate
		}
	}
	m.nextID++
	account.ID = m.nextID
	cp := *account
	m.accounts = append(m.accounts, &cp)
	return nil
}

func (m *memAccounts) Create(_ context.Context, account *model.OAuthAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(account)
}

func (m *memAccounts) CreateWithUser(_ context.Context, user *model.User, account *model.OAuthAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users.mu.Lock()
	defer m.users.mu.Unlock()

	for _, a := range m.accounts {
		if a.Provider == account.Provider && a.ProviderUserID == account.ProviderUserID {
			return repository.ErrDuplicate
		}
	}
	if err := m.users.createLocked(user); err != nil {
		return err
	}
	account.UserID = user.ID
	return m.createLocked(account)
}

func (m *memAccounts) UpdateTokens(_ context.Context, id uint, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID != id {
			continue
		}
		if v, ok := fields["access_token"].(string); ok {
			a.AccessToken = v
		}
		if v, ok := fields["refresh_token"].(string); ok {
			a.RefreshToken = v
		}
		if v, ok := fields["scope"].(string); ok {
			a.Scope = v
		}
		if v, ok := fields["expires_at"].(*time.Time); ok {
			a.ExpiresAt = v
		}
		return nil
	}
	return repository.ErrNotFound
}

func (m *memAccounts) DeleteByUserAndProvider(_ context.Context, userID, provider string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.accounts[:0]
	var n int64
	for _, a := range m.accounts {
		if a.UserID == userID && a.Provider == provider {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.accounts = kept
	return n, nil
}

type memRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	fail    bool
}

func newMemRevocations() *memRevocations {
	return &memRevocations{entries: make(map[string]time.Time)}
}

var errBackendDown = errors.New("backend down")

func (m *memRevocations) Insert(_ context.Context, hash string, expireAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errBackendDown
	}
	m.entries[hash] = expireAt
	return nil
}

func (m *memRevocations) Exists(_ context.Context, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errBackendDown
	}
	exp, ok := m.entries[hash]
	return ok && exp.After(now), nil
}

func (m *memRevocations) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errBackendDown
	}
	var n int64
	for h, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, h)
			n++
		}
	}
	return n, nil
}

func (m *memRevocations) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// plainHasher keeps tests fast; hashing itself is covered in pkg/hash.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Check(password, hash string) (bool, error) {
	return hash == "plain$"+password, nil
}

type sentMail struct {
	To       string
	Template string
	Data     mail.TemplateData
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (r *recordingMailer) SendTemplate(_ context.Context, to mail.Address, _ string, name string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	td, _ := data.(mail.TemplateData)
	r.sent = append(r.sent, sentMail{To: to.Address, Template: name, Data: td})
	return nil
}

func (r *recordingMailer) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingMailer) byTemplate(name string) []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMail
	for _, m := range r.sent {
		if m.Template == name {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var (
	testKeysOnce sync.Once
	testKeys     Keys
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	testKeysOnce.Do(func() {
		access, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		refresh, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKeys = Keys{
			AccessPrivate:  access,
			AccessPublic:   &access.PublicKey,
			RefreshPrivate: refresh,
			RefreshPublic:  &refresh.PublicKey,
		}
	})

	codec, err := NewTokenCodec(config.JWTConfig{
		Algorithm:  "RS256",
		Issuer:     "auth-service-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, testKeys)
	require.NoError(t, err)
	return codec
}

type testEnv struct {
	users      *memUsers
	accounts   *memAccounts
	revoked    *memRevocations
	mailer     *recordingMailer
	publisher  *recordingPublisher
	codec      *TokenCodec
	sessions   *SessionTokens
	revocation *RevocationStore
	notifier   *Notifier
	registry   *oauth.Registry
	auth       *AuthService
	oauth      *OAuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUsers()
	env := &testEnv{
		users:     users,
		accounts:  newMemAccounts(users),
		revoked:   newMemRevocations(),
		mailer:    &recordingMailer{},
		publisher: &recordingPublisher{},
		codec:     newTestCodec(t),
		registry:  oauth.NewRegistry(),
	}
	env.sessions = NewSessionTokens(env.codec, 30*time.Minute, time.Hour)
	env.revocation = NewRevocationStore(env.revoked, env.codec)
	env.notifier = NewNotifier(env.mailer, env.publisher, "Auth Test", 15*time.Minute)

	c, err := cache.New(64)
	require.NoError(t, err)
	profiles := NewUserService(users, c, time.Minute)

	env.auth = NewAuthService(AuthDeps{
		Users:      users,
		Profiles:   profiles,
		Codec:      env.codec,
		Sessions:   env.sessions,
		Revocation: env.revocation,
		Hasher:     plainHasher{},
		Notifier:   env.notifier,
		OTPExpiry:  15 * time.Minute,
		ExposeOTP:  true,
	})
	env.oauth = NewOAuthService(OAuthDeps{
		Registry:         env.registry,
		Accounts:         env.accounts,
		Users:            users,
		Profiles:         profiles,
		Auth:             env.auth,
		Notifier:         env.notifier,
		StateTTL:         10 * time.Minute,
		AllowedRedirects: []string{"https://app.example.com/"},
	})
	return env
}

// settle waits for background mail and events.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.notifier.Wait(ctx))
}

// verifiedUser signs up and verifies a password user.
func (e *testEnv) verifiedUser(t *testing.T, email, password string) *model.User {
	t.Helper()
	ctx := context.Background()
	res, err := e.auth.Signup(ctx, SignupInput{Email: email, Password: password, FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	user, _, err := e.auth.VerifyOTP(ctx, res.SessionToken, res.OTPCode)
	require.NoError(t, err)
	return user
}
