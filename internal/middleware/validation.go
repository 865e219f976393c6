package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/validation"
	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes     = 1 << 20
	validatedBodyKey = "validated_body"
)

// ValidateRequestBody decodes the JSON body into a new T, runs the binding
// tags and stores the result for ValidatedBody. Failures answer 400 with
// one message per invalid field.
func ValidateRequestBody[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		request := new(T)
		if err := c.ShouldBindJSON(request); err != nil {
			var details any
			message := "Validation failed"
			fieldErrors := validation.Messages(err)
			switch {
			case fieldErrors != nil:
				details = fieldErrors
			case errors.Is(err, io.EOF):
				message = constants.MsgInvalidRequest
				details = []string{"request body is required"}
			default:
				message = constants.MsgInvalidRequest
			}

			logger.WarnWithContext(ctx, "Request validation failed").
				Path(c.Request.URL.Path).
				Int("error_count", len(fieldErrors)).
				Err(err).
				Log()

			c.AbortWithStatusJSON(http.StatusBadRequest,
				constants.BuildCodedErrorResponse(apperrors.ErrInvalidInput.Code, message, details))
			return
		}

		c.Set(validatedBodyKey, request)
		c.Next()
	}
}

// ValidatedBody returns the body stored by ValidateRequestBody, or a zero T
// when the route was registered without it.
func ValidatedBody[T any](c *gin.Context) *T {
	if v, ok := c.Get(validatedBodyKey); ok {
		if req, ok := v.(*T); ok {
			return req
		}
	}
	return new(T)
}
