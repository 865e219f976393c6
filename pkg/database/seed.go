package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"gorm.io/gorm"
)

// DefaultAdmin is the bootstrap administrator created on first start.
type DefaultAdmin struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

// SeedAdmin creates admin unless a user with that email already exists.
// An empty email disables seeding.
func SeedAdmin(ctx context.Context, db *gorm.DB, admin DefaultAdmin) error {
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" {
		return nil
	}

	var existing model.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	hash := admin.PasswordHash
	user := model.User{
		Email:           email,
		Password:        &hash,
		FirstName:       admin.FirstName,
		LastName:        admin.LastName,
		FullName:        model.FullName(admin.FirstName, admin.LastName),
		Role:            constants.RoleAdmin,
		IsActive:        true,
		IsVerified:      true,
		EmailVerifiedAt: &now,
	}

	return db.WithContext(ctx).Create(&user).Error
}
