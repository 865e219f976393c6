package service

import (
	"context"
	"errors"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	"github.com/Payphone-Digital/auth-service/pkg/cache"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
)

// UserService serves user profiles through the cache-aside helper. Cached
// users carry no password or OTP, so credential checks always read the
// store directly.
type UserService struct {
	users UserStore
	cache *cache.Cache
	ttl   time.Duration
}

func NewUserService(users UserStore, c *cache.Cache, ttl time.Duration) *UserService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserService{users: users, cache: c, ttl: ttl}
}

func (s *UserService) GetProfile(ctx context.Context, id string) (*model.User, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "GetProfile")

	user, err := cache.GetOrCompute(ctx, s.cache, constants.UserCacheKey(id), s.ttl, func(ctx context.Context) (*model.User, error) {
		return s.users.FindByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to load user profile").
			String("user_id", id).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return user, nil
}

// Invalidate drops every cached view of user. Failures are logged inside
// the cache and never surface.
func (s *UserService) Invalidate(ctx context.Context, user *model.User) {
	keys := []string{constants.UserCacheKey(user.ID)}
	if user.Email != "" {
		keys = append(keys, constants.UserEmailCacheKey(user.Email))
	}
	s.cache.Invalidate(ctx, keys...)
	s.cache.InvalidatePattern(ctx, constants.CacheKeyUsersListPref)
}
