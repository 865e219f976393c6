package main

import (
	"context"
	"time"

	configs "github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/pkg/database"
	"github.com/Payphone-Digital/auth-service/pkg/hash"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seedAdmin creates the bootstrap administrator from ADMIN_EMAIL and
// ADMIN_PASSWORD. Failures are logged, not fatal.
func seedAdmin(db *gorm.DB, config *configs.Config, hasher *hash.Manager) {
	if config.Auth.AdminEmail == "" || config.Auth.AdminPassword == "" {
		return
	}

	passwordHash, err := hasher.Hash(config.Auth.AdminPassword)
	if err != nil {
		logger.GetLogger().Error("Failed to hash admin password", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = database.SeedAdmin(ctx, db, database.DefaultAdmin{
		FirstName:    "System",
		LastName:     "Administrator",
		Email:        config.Auth.AdminEmail,
		PasswordHash: passwordHash,
	})
	if err != nil {
		logger.GetLogger().Error("Failed to seed admin user", zap.Error(err))
		return
	}
	logger.GetLogger().Info("Admin user ensured", zap.String("email", config.Auth.AdminEmail))
}
