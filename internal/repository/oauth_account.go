package repository

import (
	"context"

	"github.com/Payphone-Digital/auth-service/internal/model"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"gorm.io/gorm"
)

type OAuthAccountRepository struct {
	db *gorm.DB
}

func NewOAuthAccountRepository(db *gorm.DB) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: db}
}

func (r *OAuthAccountRepository) FindByProviderSubject(ctx context.Context, provider, providerUserID string) (*model.OAuthAccount, error) {
	var account model.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&account).Error
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (r *OAuthAccountRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthAccount, error) {
	var account model.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&account).Error
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (r *OAuthAccountRepository) ListByUser(ctx context.Context, userID string) ([]model.OAuthAccount, error) {
	var accounts []model.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, translate(err)
}

func (r *OAuthAccountRepository) Create(ctx context.Context, account *model.OAuthAccount) error {
	ctx = ctxutil.WithFunction(ctx, "repository", "CreateOAuthAccount")

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		logger.WarnWithContext(ctx, "Failed to create OAuth account").
			String("provider", account.Provider).
			Err(err).
			Log()
		return translate(err)
	}
	return nil
}

// CreateWithUser inserts a new user and its first linked account atomically.
func (r *OAuthAccountRepository) CreateWithUser(ctx context.Context, user *model.User, account *model.OAuthAccount) error {
	ctx = ctxutil.WithFunction(ctx, "repository", "CreateWithUser")

	user.Email = normalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		account.UserID = user.ID
		return tx.Create(account).Error
	})
	if err != nil {
		logger.WarnWithContext(ctx, "Failed to create OAuth user").
			String("provider", account.Provider).
			Err(err).
			Log()
		return translate(err)
	}
	return nil
}

func (r *OAuthAccountRepository) UpdateTokens(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&model.OAuthAccount{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OAuthAccountRepository) DeleteByUserAndProvider(ctx context.Context, userID, provider string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&model.OAuthAccount{})
	return result.RowsAffected, translate(result.Error)
}
