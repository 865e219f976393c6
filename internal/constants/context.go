package constants

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys for request tracking and the authenticated subject
const (
	CtxKeyRequestID     ContextKey = "request_id"
	CtxKeyUserID        ContextKey = "user_id"
	CtxKeyUserRole      ContextKey = "user_role"
	CtxKeyClientIP      ContextKey = "client_ip"
	CtxKeyUserAgent     ContextKey = "user_agent"
	CtxKeyCorrelationID ContextKey = "correlation_id"
	CtxKeyStartTime     ContextKey = "start_time"
	CtxKeyModule        ContextKey = "module"
	CtxKeyFunction      ContextKey = "function"
)

// Gin context keys set by the auth middleware
const (
	GinKeyClaims = "claims"
	GinKeyUserID = "user_id"
)
