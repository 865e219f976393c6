package database

import (
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Partial indexes that GORM tags cannot express. Failures are logged and
// skipped; they only cost query speed.
var authIndexes = []string{
	// unverified-user cleanup scans only unverified rows by age
	"CREATE INDEX IF NOT EXISTS idx_users_unverified_created ON users(created_at) WHERE is_verified = false;",
	// every auth read filters out soft-deleted users
	"CREATE INDEX IF NOT EXISTS idx_users_email_live ON users(email) WHERE is_deleted = false;",
	"CREATE INDEX IF NOT EXISTS idx_users_otp_pending ON users(email) WHERE otp_code IS NOT NULL;",
}

// CreateIndexes applies authIndexes; it is safe to run on every start.
func CreateIndexes(db *gorm.DB) error {
	created := 0
	for _, indexSQL := range authIndexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			logger.GetLogger().Warn("Failed to create index", zap.String("sql", indexSQL), zap.Error(err))
			continue
		}
		created++
	}
	logger.GetLogger().Info("Database indexes ensured", zap.Int("count", created))
	return nil
}
