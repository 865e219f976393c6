package handler

import (
	"context"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/internal/dto"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/service"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

// sessionWriter puts a login pair on the wire: the access token in the
// Authorization header, the refresh token in an http-only cookie.
type sessionWriter struct {
	jar     *cookie.Jar
	cookies config.CookieConfig
}

func (w sessionWriter) issue(ctx context.Context, c *gin.Context, tokens *service.LoginTokens) {
	c.Header(constants.HeaderAuthorization, constants.BearerPrefix+tokens.AccessToken)
	if err := w.jar.Set(c.Writer, w.cookies.RefreshName, tokens.RefreshToken, tokens.RefreshTTL); err != nil {
		logger.WarnWithContext(ctx, "Refresh cookie not set").Err(err).Log()
	}
}

func (w sessionWriter) clear(c *gin.Context) {
	w.jar.Clear(c.Writer, w.cookies.AccessName)
	w.jar.Clear(c.Writer, w.cookies.RefreshName)
}

func (w sessionWriter) refreshCookie(c *gin.Context) string {
	return cookie.Get(c.Request, w.cookies.RefreshName)
}

func loginResponse(user *model.User, tokens *service.LoginTokens) dto.LoginResponse {
	return dto.LoginResponse{
		User:      dto.NewUserResponse(user),
		Token:     tokens.AccessToken,
		ExpiresIn: int(tokens.AccessTTL.Seconds()),
	}
}

// respondError maps err to its status and the standard error body. Only
// domain messages reach the client.
func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.ToHTTPStatus(err), constants.BuildCodedErrorResponse(
		apperrors.GetErrorCode(err),
		apperrors.GetErrorMessage(err),
		nil,
	))
}

// currentUserID returns the subject set by the auth middleware.
func currentUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(constants.GinKeyUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
