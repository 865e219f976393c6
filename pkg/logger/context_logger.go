package logger

import (
	"context"
	"time"

	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogBuilder accumulates fields for one log line and pulls request
// metadata out of ctx when the level is chosen.
type ContextLogBuilder struct {
	logger    *zap.Logger
	ctx       context.Context
	level     zapcore.Level
	fields    []zap.Field
	message   string
	shouldLog bool
}

func newBuilder(l *zap.Logger, ctx context.Context, level zapcore.Level, message string) *ContextLogBuilder {
	if l == nil {
		l = Logger
	}
	b := &ContextLogBuilder{
		logger:    l,
		ctx:       ctx,
		level:     level,
		message:   message,
		shouldLog: l.Core().Enabled(level),
	}
	if b.shouldLog {
		b.fields = make([]zap.Field, 0, 10)
		b.extractContextFields()
	}
	return b
}

func (clb *ContextLogBuilder) extractContextFields() {
	if clb.ctx == nil {
		return
	}

	if requestID := ctxutil.GetRequestID(clb.ctx); requestID != "" {
		clb.fields = append(clb.fields, zap.String("request_id", requestID))
	}
	if correlationID := ctxutil.GetCorrelationID(clb.ctx); correlationID != "" {
		clb.fields = append(clb.fields, zap.String("correlation_id", correlationID))
	}
	if clientIP := ctxutil.GetClientIP(clb.ctx); clientIP != "" {
		clb.fields = append(clb.fields, zap.String("client_ip", clientIP))
	}
	if userID := ctxutil.GetUserID(clb.ctx); userID != "" {
		clb.fields = append(clb.fields, zap.String("user_id", userID))
	}
	if role := ctxutil.GetUserRole(clb.ctx); role != "" {
		clb.fields = append(clb.fields, zap.String("user_role", role))
	}
	if module := ctxutil.GetModule(clb.ctx); module != "" {
		clb.fields = append(clb.fields, zap.String("module", module))
	}
	if function := ctxutil.GetFunction(clb.ctx); function != "" {
		clb.fields = append(clb.fields, zap.String("function", function))
	}
	if duration := ctxutil.GetDuration(clb.ctx); duration > 0 {
		clb.fields = append(clb.fields, zap.Duration("elapsed", duration))
	}
}

func (clb *ContextLogBuilder) String(key, value string) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.String(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Int(key string, value int) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Int(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Int64(key string, value int64) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Int64(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Bool(key string, value bool) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Bool(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Duration(value time.Duration) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Duration("duration", value))
	}
	return clb
}

func (clb *ContextLogBuilder) Err(err error) *ContextLogBuilder {
	if clb.shouldLog && err != nil {
		clb.fields = append(clb.fields, zap.Error(err))
	}
	return clb
}

func (clb *ContextLogBuilder) Any(key string, value any) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Any(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Fields(fields map[string]any) *ContextLogBuilder {
	if clb.shouldLog {
		for k, v := range fields {
			clb.fields = append(clb.fields, zap.Any(k, v))
		}
	}
	return clb
}

func (clb *ContextLogBuilder) Method(method string) *ContextLogBuilder {
	return clb.String("method", method)
}

func (clb *ContextLogBuilder) Path(path string) *ContextLogBuilder {
	return clb.String("path", path)
}

func (clb *ContextLogBuilder) StatusCode(code int) *ContextLogBuilder {
	return clb.Int("status_code", code)
}

// Log writes the entry. Debug and info lines are dropped once ctx is done;
// warnings and errors are always written.
func (clb *ContextLogBuilder) Log() {
	if !clb.shouldLog {
		return
	}

	if clb.ctx != nil && clb.level < zapcore.WarnLevel && !ctxutil.IsValidContext(clb.ctx) {
		return
	}

	if ce := clb.logger.Check(clb.level, clb.message); ce != nil {
		ce.Write(clb.fields...)
	}
}

func InfoWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(Logger, ctx, zapcore.InfoLevel, message)
}

func WarnWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(Logger, ctx, zapcore.WarnLevel, message)
}

func ErrorWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(Logger, ctx, zapcore.ErrorLevel, message)
}

func DebugWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(Logger, ctx, zapcore.DebugLevel, message)
}

// ContextLogger lets components log through an injected *zap.Logger while
// keeping the builder API.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(l *zap.Logger) *ContextLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ContextLogger{logger: l}
}

func (cl *ContextLogger) Info(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(cl.logger, ctx, zapcore.InfoLevel, message)
}

func (cl *ContextLogger) Warn(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(cl.logger, ctx, zapcore.WarnLevel, message)
}

func (cl *ContextLogger) Error(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(cl.logger, ctx, zapcore.ErrorLevel, message)
}

func (cl *ContextLogger) Debug(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(cl.logger, ctx, zapcore.DebugLevel, message)
}

func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.logger
}
