package database

import (
	"github.com/Payphone-Digital/auth-service/internal/model"
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.OAuthAccount{},
		&model.RevokedToken{},
	); err != nil {
		return err
	}
	return CreateIndexes(db)
}
