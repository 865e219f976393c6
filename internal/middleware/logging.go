package middleware

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const slowRequestThreshold = 2 * time.Second

// LoggingMiddleware routes gin's access log through zap.
func LoggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			logger.LogRequest(
				param.Method,
				param.Path,
				param.StatusCode,
				param.Latency.Milliseconds(),
				param.ClientIP,
				param.Request.UserAgent(),
			)

			if param.ErrorMessage != "" {
				logger.GetLogger().Error("Request error",
					zap.String("error", param.ErrorMessage),
					zap.String("method", param.Method),
					zap.String("path", param.Path),
					zap.Int("status_code", param.StatusCode),
				)
			}

			if param.Latency > slowRequestThreshold {
				logger.GetLogger().Warn("Slow request detected",
					zap.String("method", param.Method),
					zap.String("path", param.Path),
					zap.Duration("latency", param.Latency),
				)
			}

			return ""
		},
		Output: io.Discard,
		// probes would drown the log
		SkipPaths: []string{"/api/health"},
	})
}

// RecoveryMiddleware turns a panic into a 500 with the standard error body.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.LogPanic(recovered)

		c.AbortWithStatusJSON(http.StatusInternalServerError,
			constants.BuildCodedErrorResponse(apperrors.ErrInternal.Code, constants.MsgInternalError, nil))
	})
}

var credentialPaths = []string{"/auth/login", "/auth/signup", "/auth/register", "/auth/forgot-password", "/auth/reset-password"}

// SecurityLoggingMiddleware records credential attempts and scanner traffic.
func SecurityLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userAgent := c.Request.UserAgent()

		if isSuspiciousUserAgent(userAgent) {
			logger.WarnWithContext(ctx, "Suspicious user agent detected").
				String("user_agent", userAgent).
				Path(c.Request.URL.Path).
				Log()
		}

		c.Next()

		if c.Request.Method != http.MethodPost || !isCredentialPath(c.Request.URL.Path) {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			logger.WarnWithContext(ctx, "Credential attempt rejected").
				Path(c.Request.URL.Path).
				StatusCode(status).
				Log()
		}
	}
}

func isCredentialPath(path string) bool {
	for _, p := range credentialPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

func isSuspiciousUserAgent(userAgent string) bool {
	suspiciousPatterns := []string{
		"sqlmap", "nikto", "nmap", "masscan", "burp", "hydra",
	}

	ua := strings.ToLower(userAgent)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
