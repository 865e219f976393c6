package ctxutil

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
)

type ContextKey = constants.ContextKey

const (
	RequestIDKey     = constants.CtxKeyRequestID
	UserIDKey        = constants.CtxKeyUserID
	UserRoleKey      = constants.CtxKeyUserRole
	ClientIPKey      = constants.CtxKeyClientIP
	UserAgentKey     = constants.CtxKeyUserAgent
	CorrelationIDKey = constants.CtxKeyCorrelationID
	StartTimeKey     = constants.CtxKeyStartTime
	ModuleKey        = constants.CtxKeyModule
	FunctionKey      = constants.CtxKeyFunction
)

func WithValue(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithUserID attaches the authenticated subject to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, UserRoleKey, role)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// WithFunction tags ctx with the module/function pair used in log lines.
func WithFunction(ctx context.Context, module, function string) context.Context {
	ctx = context.WithValue(ctx, ModuleKey, module)
	return context.WithValue(ctx, FunctionKey, function)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

func GetRequestID(ctx context.Context) string     { return stringValue(ctx, RequestIDKey) }
func GetCorrelationID(ctx context.Context) string { return stringValue(ctx, CorrelationIDKey) }
func GetClientIP(ctx context.Context) string      { return stringValue(ctx, ClientIPKey) }
func GetUserAgent(ctx context.Context) string     { return stringValue(ctx, UserAgentKey) }
func GetUserID(ctx context.Context) string        { return stringValue(ctx, UserIDKey) }
func GetUserRole(ctx context.Context) string      { return stringValue(ctx, UserRoleKey) }
func GetModule(ctx context.Context) string        { return stringValue(ctx, ModuleKey) }
func GetFunction(ctx context.Context) string      { return stringValue(ctx, FunctionKey) }

func GetStartTime(ctx context.Context) time.Time {
	if ctx == nil {
		return time.Time{}
	}
	if val, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return val
	}
	return time.Time{}
}

// GetDuration calculates duration from start time
func GetDuration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if !startTime.IsZero() {
		return time.Since(startTime)
	}
	return 0
}

// IsValidContext checks if context is still valid
func IsValidContext(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// NewContextWithRequest enriches ctx with caller metadata from req and the
// module/function being entered.
func NewContextWithRequest(ctx context.Context, req *http.Request, module, function string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = WithFunction(ctx, module, function)

	if req != nil {
		if GetClientIP(ctx) == "" {
			ctx = context.WithValue(ctx, ClientIPKey, ClientIP(req))
		}
		if GetUserAgent(ctx) == "" {
			ctx = context.WithValue(ctx, UserAgentKey, req.UserAgent())
		}
	}

	if GetStartTime(ctx).IsZero() {
		ctx = context.WithValue(ctx, StartTimeKey, time.Now())
	}

	return ctx
}

// ClientIP resolves the caller address honouring proxy headers.
func ClientIP(req *http.Request) string {
	for _, header := range []string{constants.HeaderCFConnectingIP, constants.HeaderXRealIP} {
		if ip := strings.TrimSpace(req.Header.Get(header)); ip != "" {
			return ip
		}
	}
	if fwd := req.Header.Get(constants.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// ContextToMap converts context to map for logging
func ContextToMap(ctx context.Context) map[string]any {
	result := make(map[string]any)

	if requestID := GetRequestID(ctx); requestID != "" {
		result["request_id"] = requestID
	}
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		result["correlation_id"] = correlationID
	}
	if clientIP := GetClientIP(ctx); clientIP != "" {
		result["client_ip"] = clientIP
	}
	if module := GetModule(ctx); module != "" {
		result["module"] = module
	}
	if function := GetFunction(ctx); function != "" {
		result["function"] = function
	}
	if userID := GetUserID(ctx); userID != "" {
		result["user_id"] = userID
	}
	if duration := GetDuration(ctx); duration > 0 {
		result["duration"] = duration
	}

	return result
}
