package constants

import "time"

// Application Information
const (
	AppName    = "Auth Service"
	AppVersion = "1.0.0"
)

// Environment Types
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Cache keys
const (
	CacheKeyUser          = "user:"
	CacheKeyUserEmail     = "user:email:"
	CacheKeyUsersListPref = "users:list:"
)

func UserCacheKey(id string) string         { return CacheKeyUser + id }
func UserEmailCacheKey(email string) string { return CacheKeyUserEmail + email }

// Best-effort background tasks
const (
	BackgroundTaskTimeout = 30 * time.Second
)

// Scheduled job names
const (
	JobRevocationPurge       = "revocation-purge"
	JobUnverifiedUserCleanup = "unverified-user-cleanup"
)
