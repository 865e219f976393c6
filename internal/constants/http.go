package constants

// HTTP Header Names
const (
	HeaderContentType    = "Content-Type"
	HeaderAuthorization  = "Authorization"
	HeaderAccept         = "Accept"
	HeaderUserAgent      = "User-Agent"
	HeaderXRequestID     = "X-Request-ID"
	HeaderXCorrelationID = "X-Correlation-ID"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
)

const BearerPrefix = "Bearer "

// HTTP Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Common HTTP Error Messages
const (
	MsgAuthRequired       = "Authentication required"
	MsgTokenRevoked       = "Token has been revoked"
	MsgInvalidAccessToken = "Invalid access token"
	MsgInvalidRequest     = "Invalid request format"
	MsgInternalError      = "Internal server error"
	MsgServiceUnavailable = "Service temporarily unavailable"
	MsgTooManyRequests    = "Too many requests"
	MsgTimeout            = "Request timeout"
)

// Cookie names that are not configurable
const (
	CookieOAuthState = "oauth_state"
)
