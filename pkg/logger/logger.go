package logger

import (
	"os"
	"path/filepath"

	"github.com/Payphone-Digital/auth-service/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a no-op until InitLogger runs, so packages can log from tests.
var (
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
)

// InitLogger initializes Zap logger with configuration
func InitLogger(cfg *config.Config) error {
	logsPath := getEnv("LOGS_PATH", "./logs")
	if err := os.MkdirAll(logsPath, 0755); err != nil {
		return err
	}

	zapLevel := zapcore.DebugLevel
	if cfg.IsProduction() {
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	files := make([]*os.File, 0, 3)
	open := func(name string) (zapcore.WriteSyncer, error) {
		f, err := os.OpenFile(filepath.Join(logsPath, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, err
		}
		files = append(files, f)
		return zapcore.AddSync(f), nil
	}

	infoWriter, err := open("info.log")
	if err != nil {
		return err
	}
	errorWriter, err := open("error.log")
	if err != nil {
		return err
	}
	debugWriter, err := open("debug.log")
	if err != nil {
		return err
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if cfg.IsProduction() {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(infoWriter, zapcore.AddSync(os.Stdout)), zapLevel),
		zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(errorWriter, zapcore.AddSync(os.Stderr)), zapcore.ErrorLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), debugWriter, zapcore.DebugLevel),
	)

	Logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", cfg.App.Name))
	Sugar = Logger.Sugar()

	return nil
}

// GetLogger returns the structured logger
func GetLogger() *zap.Logger {
	return Logger
}

// Sync flushes buffered entries; call before the process exits.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func WithFields(fields ...zap.Field) *zap.Logger {
	return Logger.With(fields...)
}

// Fatal logs and terminates the process. Reserved for startup failures.
func Fatal(message string, fields ...zap.Field) {
	Logger.Fatal(message, fields...)
}

// LogRequest logs HTTP request information
func LogRequest(method, path string, statusCode int, duration int64, clientIP string, userAgent string) {
	Logger.Info("HTTP Request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", duration),
		zap.String("client_ip", clientIP),
		zap.String("user_agent", userAgent),
	)
}

// LogError logs error with stack trace
func LogError(err error, message string, fields ...zap.Field) {
	Logger.Error(message, append([]zap.Field{zap.Error(err)}, fields...)...)
}

// LogPanic logs panic and recovers
func LogPanic(recovered any) {
	Logger.Error("Panic recovered",
		zap.Any("panic", recovered),
		zap.Stack("stack"),
	)
}

// LogAuth records an authentication event. Failures go out at warn level.
func LogAuth(userID, action string, success bool, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.Bool("success", success),
	}, fields...)

	if success {
		Logger.Info("Authentication success", allFields...)
	} else {
		Logger.Warn("Authentication failure", allFields...)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
