package repository

import (
	"context"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevokedTokenRepository struct {
	db *gorm.DB
}

func NewRevokedTokenRepository(db *gorm.DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Insert is idempotent: a second insert of the same hash is a no-op.
func (r *RevokedTokenRepository) Insert(ctx context.Context, hash string, expireAt time.Time) error {
	row := model.RevokedToken{TokenHash: hash, ExpireAt: expireAt}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (r *RevokedTokenRepository) Exists(ctx context.Context, hash string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RevokedToken{}).
		Where("token_hash = ? AND expire_at > ?", hash, now).
		Count(&count).Error
	return count > 0, err
}

func (r *RevokedTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expire_at <= ?", now).
		Delete(&model.RevokedToken{})
	return result.RowsAffected, result.Error
}

// Ping satisfies the health probe for the postgres backend.
func (r *RevokedTokenRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
