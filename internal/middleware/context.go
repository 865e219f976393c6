package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestContext seeds the request context with request and correlation
// IDs, client info and start time. Both IDs are echoed in response headers.
func RequestContext(module string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		correlationID := c.GetHeader(constants.HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = requestID
		}

		ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, module, c.FullPath())
		ctx = ctxutil.WithRequestID(ctx, requestID)
		ctx = ctxutil.WithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(constants.HeaderXRequestID, requestID)
		c.Header(constants.HeaderXCorrelationID, correlationID)

		logger.DebugWithContext(ctx, "Request started").
			Method(c.Request.Method).
			Path(c.Request.URL.Path).
			Log()

		c.Next()

		logger.DebugWithContext(ctx, "Request completed").
			Method(c.Request.Method).
			Path(c.Request.URL.Path).
			StatusCode(c.Writer.Status()).
			Int("response_size", c.Writer.Size()).
			Duration(ctxutil.GetDuration(ctx)).
			Log()
	}
}

// RequestTimeout bounds the request context. Handlers that honour the
// context return early; if nothing was written yet the client gets 504.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			logger.WarnWithContext(ctx, "Request timed out").
				Duration(timeout).
				Path(c.Request.URL.Path).
				Log()
			c.AbortWithStatusJSON(http.StatusGatewayTimeout,
				constants.BuildErrorResponse(constants.MsgTimeout, nil))
		}
	}
}
