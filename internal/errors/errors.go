package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error // underlying error for wrapping
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain error context
func WrapError(domainErr *DomainError, err error) *DomainError {
	return &DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Err:     err,
	}
}

// Predefined domain errors
var (
	// Request errors
	ErrBadRequest       = NewDomainError("BAD_REQUEST", "bad request")
	ErrInvalidInput     = NewDomainError("INVALID_INPUT", "invalid input")
	ErrPasswordMismatch = NewDomainError("PASSWORD_MISMATCH", "password and confirmation do not match")
	ErrInvalidOTP       = NewDomainError("INVALID_OTP", "invalid or expired OTP")

	// User errors
	ErrUserNotFound       = NewDomainError("USER_NOT_FOUND", "user not found")
	ErrEmailExists        = NewDomainError("EMAIL_EXISTS", "email already exists")
	ErrAlreadyVerified    = NewDomainError("ALREADY_VERIFIED", "account is already verified")
	ErrInvalidCredentials = NewDomainError("INVALID_CREDENTIALS", "Invalid credentials")
	ErrIncorrectPassword  = NewDomainError("INCORRECT_PASSWORD", "current password is incorrect")

	// Authentication errors
	ErrUnauthorized   = NewDomainError("UNAUTHORIZED", "unauthorized")
	ErrAuthRequired   = NewDomainError("AUTH_REQUIRED", "Authentication required")
	ErrTokenExpired   = NewDomainError("TOKEN_EXPIRED", "token has expired")
	ErrTokenMalformed = NewDomainError("TOKEN_MALFORMED", "token is malformed or has an invalid signature")
	ErrTokenRevoked   = NewDomainError("TOKEN_REVOKED", "Token has been revoked")
	ErrInvalidState   = NewDomainError("INVALID_STATE", "invalid or expired session")

	// Authorization errors
	ErrForbidden          = NewDomainError("FORBIDDEN", "Access forbidden")
	ErrAccountNotVerified = NewDomainError("ACCOUNT_NOT_VERIFIED", "Please verify your email first")
	ErrAccountInactive    = NewDomainError("ACCOUNT_INACTIVE", "Account is not active")
	ErrInsufficientRole   = NewDomainError("INSUFFICIENT_ROLE", "Admin access required")

	// OAuth errors
	ErrInvalidProvider       = NewDomainError("INVALID_PROVIDER", "Invalid OAuth provider")
	ErrProviderNotConfigured = NewDomainError("PROVIDER_NOT_CONFIGURED", "OAuth provider is not configured")
	ErrOAuthStateMismatch    = NewDomainError("INVALID_STATE_PARAM", "Invalid OAuth state parameter")
	ErrMissingCode           = NewDomainError("MISSING_CODE", "Authorization code not provided")
	ErrOAuthDenied           = NewDomainError("OAUTH_DENIED", "Authorization was denied by the provider")
	ErrAccountNotFound       = NewDomainError("ACCOUNT_NOT_FOUND", "OAuth account not found")
	ErrProviderExchange      = NewDomainError("OAUTH_PROVIDER_ERROR", "Failed to exchange authorization code")
	ErrProviderProfile       = NewDomainError("OAUTH_PROVIDER_ERROR", "Failed to fetch user information")
	ErrTelegramAuthInvalid   = NewDomainError("INVALID_TELEGRAM_AUTH", "Invalid Telegram authentication")

	// System errors
	ErrStoreUnavailable   = NewDomainError("STORE_UNAVAILABLE", "storage unavailable")
	ErrMailFailed         = NewDomainError("MAIL_FAILED", "failed to send email")
	ErrInternal           = NewDomainError("INTERNAL_ERROR", "internal server error")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", "service unavailable")
)

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ToHTTPStatus maps domain errors to HTTP status codes
// This should only be used in the handler/presentation layer
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErrorToHTTPStatus(domainErr)
	}

	return http.StatusInternalServerError
}

func domainErrorToHTTPStatus(err *DomainError) int {
	switch err.Code {
	// 400 Bad Request
	case "BAD_REQUEST", "INVALID_INPUT", "PASSWORD_MISMATCH", "INVALID_OTP",
		"INVALID_STATE_PARAM", "INVALID_PROVIDER", "MISSING_CODE", "OAUTH_DENIED",
		"PROVIDER_NOT_CONFIGURED":
		return http.StatusBadRequest

	// 401 Unauthorized
	case "UNAUTHORIZED", "INVALID_CREDENTIALS", "TOKEN_EXPIRED", "TOKEN_MALFORMED",
		"TOKEN_REVOKED", "AUTH_REQUIRED", "INVALID_STATE", "INVALID_TELEGRAM_AUTH":
		return http.StatusUnauthorized

	// 403 Forbidden
	case "FORBIDDEN", "ACCOUNT_NOT_VERIFIED", "ACCOUNT_INACTIVE", "INSUFFICIENT_ROLE",
		"INCORRECT_PASSWORD":
		return http.StatusForbidden

	// 404 Not Found
	case "USER_NOT_FOUND", "ACCOUNT_NOT_FOUND":
		return http.StatusNotFound

	// 409 Conflict
	case "EMAIL_EXISTS", "ALREADY_VERIFIED":
		return http.StatusConflict

	// 503 Service Unavailable
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable

	// STORE_UNAVAILABLE, INTERNAL_ERROR, MAIL_FAILED, OAUTH_PROVIDER_ERROR
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage returns the client-safe message of err. Non-domain errors
// never leak their text.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	return ErrInternal.Message
}

// GetErrorCode returns the domain code of err or INTERNAL_ERROR.
func GetErrorCode(err error) string {
	if d := GetDomainError(err); d != nil {
		return d.Code
	}
	return ErrInternal.Code
}
