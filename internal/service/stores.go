package service

import (
	"context"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/model"
)

// UserStore is the persistence the auth flows need. Implementations return
// repository.ErrNotFound and repository.ErrDuplicate.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, id string, fields map[string]any) error
	SetOTP(ctx context.Context, id, code string, expireAt time.Time) error
	ConsumeOTP(ctx context.Context, id, code string, now time.Time) (bool, error)
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OAuthAccountStore interface {
	FindByProviderSubject(ctx context.Context, provider, providerUserID string) (*model.OAuthAccount, error)
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthAccount, error)
	ListByUser(ctx context.Context, userID string) ([]model.OAuthAccount, error)
	Create(ctx context.Context, account *model.OAuthAccount) error
	CreateWithUser(ctx context.Context, user *model.User, account *model.OAuthAccount) error
	UpdateTokens(ctx context.Context, id uint, fields map[string]any) error
	DeleteByUserAndProvider(ctx context.Context, userID, provider string) (int64, error)
}

// PasswordHasher is satisfied by *hash.Manager.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) (bool, error)
}
