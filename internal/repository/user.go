package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/model"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("is_deleted = ?", false)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx = ctxutil.WithFunction(ctx, "repository", "FindUserByID")

	start := time.Now()
	var user model.User
	err := r.live(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		logger.DebugWithContext(ctx, "User lookup by id failed").
			String("id", id).
			Duration(time.Since(start)).
			Err(err).
			Log()
		return nil, translate(err)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx = ctxutil.WithFunction(ctx, "repository", "FindUserByEmail")

	start := time.Now()
	var user model.User
	err := r.live(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		logger.DebugWithContext(ctx, "User lookup by email failed").
			Duration(time.Since(start)).
			Err(err).
			Log()
		return nil, translate(err)
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	ctx = ctxutil.WithFunction(ctx, "repository", "CreateUser")

	user.Email = normalizeEmail(user.Email)
	start := time.Now()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		logger.ErrorWithContext(ctx, "Failed to create user").
			Duration(time.Since(start)).
			Err(err).
			Log()
		return translate(err)
	}

	logger.DebugWithContext(ctx, "User created").
		String("id", user.ID).
		Duration(time.Since(start)).
		Log()
	return nil
}

// Update writes the given columns. A map is used so NULLs and false values
// are written rather than skipped.
func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	ctx = ctxutil.WithFunction(ctx, "repository", "UpdateUser")

	result := r.live(ctx).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update user").
			String("id", id).
			Err(result.Error).
			Log()
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOTP replaces any pending OTP of the user.
func (r *UserRepository) SetOTP(ctx context.Context, id, code string, expireAt time.Time) error {
	return r.Update(ctx, id, map[string]any{
		"otp_code":      code,
		"otp_expire_at": expireAt,
	})
}

// ConsumeOTP clears the OTP only when code matches and has not expired at
// now, in a single statement. It reports whether a row was consumed.
func (r *UserRepository) ConsumeOTP(ctx context.Context, id, code string, now time.Time) (bool, error) {
	ctx = ctxutil.WithFunction(ctx, "repository", "ConsumeOTP")

	result := r.live(ctx).
		Where("id = ? AND otp_code = ? AND otp_expire_at > ?", id, code, now).
		Updates(map[string]any{
			"otp_code":      gorm.Expr("NULL"),
			"otp_expire_at": gorm.Expr("NULL"),
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to consume OTP").
			String("id", id).
			Err(result.Error).
			Log()
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteUnverifiedBefore hard-deletes users that never verified and were
// created before cutoff, together with their linked OAuth accounts.
func (r *UserRepository) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ctxutil.WithFunction(ctx, "repository", "DeleteUnverifiedBefore")

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&model.User{}).
			Select("id").
			Where("is_verified = ? AND created_at < ?", false, cutoff)

		if err := tx.Where("user_id IN (?)", stale).Delete(&model.OAuthAccount{}).Error; err != nil {
			return err
		}

		result := tx.Where("is_verified = ? AND created_at < ?", false, cutoff).Delete(&model.User{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to delete unverified users").
			Err(err).
			Log()
		return 0, translate(err)
	}
	return deleted, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
