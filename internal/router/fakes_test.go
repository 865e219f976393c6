package router

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	"github.com/Payphone-Digital/auth-service/internal/service"
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
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) Update(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
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
		case "email_verified_at", "last_login_at", "otp_expire_at":
			var tp *time.Time
			switch t := v.(type) {
			case time.Time:
				tp = &t
			case *time.Time:
				tp = t
			}
			switch col {
			case "email_verified_at":
				u.EmailVerifiedAt = tp
			case "last_login_at":
				u.LastLoginAt = tp
			default:
				u.OTPExpireAt = tp
			}
		case "otp_code":
			if s, ok := v.(string); ok {
				u.OTPCode = &s
			} else {
				u.OTPCode = nil
			}
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

func (m *memUsers) DeleteUnverifiedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// noAccounts backs the OAuth service in tests that never complete a
// provider login.
type noAccounts struct{}

func (noAccounts) FindByProviderSubject(context.Context, string, string) (*model.OAuthAccount, error) {
	return nil, repository.ErrNotFound
}

func (noAccounts) FindByUserAndProvider(context.Context, string, string) (*model.OAuthAccount, error) {
	return nil, repository.ErrNotFound
}

func (noAccounts) ListByUser(context.Context, string) ([]model.OAuthAccount, error) {
	return nil, nil
}

func (noAccounts) Create(context.Context, *model.OAuthAccount) error { return nil }

func (noAccounts) CreateWithUser(context.Context, *model.User, *model.OAuthAccount) error {
	return nil
}

func (noAccounts) UpdateTokens(context.Context, uint, map[string]any) error { return nil }

func (noAccounts) DeleteByUserAndProvider(context.Context, string, string) (int64, error) {
	return 0, nil
}

type memRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (m *memRevocations) Insert(_ context.Context, hash string, expireAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hash] = expireAt
	return nil
}

func (m *memRevocations) Exists(_ context.Context, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[hash]
	return ok && exp.After(now), nil
}

func (m *memRevocations) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Check(password, hash string) (bool, error) {
	return hash == "plain$"+password, nil
}

type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (r *recordingMailer) SendTemplate(_ context.Context, to mail.Address, _ string, name string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if td, ok := data.(mail.TemplateData); ok && td.Code != "" {
		r.codes[name+":"+to.Address] = td.Code
	}
	return nil
}

func (r *recordingMailer) code(template, email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[template+":"+email]
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.Event) error { return nil }
func (nopPublisher) Close() error                               { return nil }

var (
	keysOnce sync.Once
	keys     service.Keys
)

func newTestCodec(t *testing.T) *service.TokenCodec {
	t.Helper()
	keysOnce.Do(func() {
		access, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		refresh, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		keys = service.Keys{
			AccessPrivate:  access,
			AccessPublic:   &access.PublicKey,
			RefreshPrivate: refresh,
			RefreshPublic:  &refresh.PublicKey,
		}
	})

	codec, err := service.NewTokenCodec(config.JWTConfig{
		Algorithm:  "RS256",
		Issuer:     "auth-service-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, keys)
	require.NoError(t, err)
	return codec
}
