package constants

// Field Length Limits
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
	MaxNameLength     = 100
	MaxPhoneLength    = 20
	MaxEmailLength    = 255
	OTPLength         = 6
)

// User roles
const (
	RoleConsumer  = "CONSUMER"
	RoleFarmer    = "FARMER"
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
)

// Token classes and steps carried inside JWT claims
const (
	TokenTypeLogin   = "login"
	TokenTypeRefresh = "refresh"
	TokenTypeSession = "session"

	StepAuthenticated = "authenticated"
	StepRegistration  = "registration"
	StepPasswordReset = "password_reset"
)

// Validation Patterns
const (
	OTPPattern = `^[0-9]{6}$`
)
