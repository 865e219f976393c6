package middleware

import (
	"context"
	"strings"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/service"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AccessVerifier interface {
	VerifyAccess(token string) (*service.AccessClaims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// SessionRefresher rotates a refresh token into a new login pair.
type SessionRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.User, *service.LoginTokens, error)
}

type AuthMiddleware struct {
	verifier   AccessVerifier
	revocation RevocationChecker
	refresher  SessionRefresher
	jar        *cookie.Jar
	cookies    config.CookieConfig
}

func NewAuthMiddleware(verifier AccessVerifier, revocation RevocationChecker, refresher SessionRefresher, jar *cookie.Jar, cookies config.CookieConfig) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   verifier,
		revocation: revocation,
		refresher:  refresher,
		jar:        jar,
		cookies:    cookies,
	}
}

// AbortWithError writes the standard error body for err and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.ToHTTPStatus(err), constants.BuildCodedErrorResponse(
		apperrors.GetErrorCode(err),
		apperrors.GetErrorMessage(err),
		nil,
	))
}

func abortWithMessage(c *gin.Context, err *apperrors.DomainError, message string) {
	c.AbortWithStatusJSON(apperrors.ToHTTPStatus(err), constants.BuildCodedErrorResponse(err.Code, message, nil))
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader(constants.HeaderAuthorization)
	if len(header) <= len(constants.BearerPrefix) || !strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(constants.BearerPrefix):])
}

// RequireAuth resolves the access token from the Authorization header, the
// access cookie, or a silent refresh using the refresh cookie. A revocation
// check that cannot be answered counts as revoked.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithFunction(c.Request.Context(), "middleware", "RequireAuth")

		token := BearerToken(c)
		if token == "" {
			token = cookie.Get(c.Request, m.cookies.AccessName)
		}
		if token == "" {
			token = m.silentRefresh(ctx, c)
		}

		if token == "" {
			logger.DebugWithContext(ctx, "No access token available").
				Path(c.Request.URL.Path).
				Log()
			abortWithMessage(c, apperrors.ErrAuthRequired, constants.MsgAuthRequired)
			return
		}

		revoked, err := m.revocation.IsRevoked(ctx, token)
		if err != nil {
			logger.ErrorWithContext(ctx, "Revocation check failed, rejecting token").
				Err(err).
				Log()
			revoked = true
		}
		if revoked {
			logger.WarnWithContext(ctx, "Attempted access with revoked token").
				Path(c.Request.URL.Path).
				Log()
			abortWithMessage(c, apperrors.ErrTokenRevoked, constants.MsgTokenRevoked)
			return
		}

		claims, err := m.verifier.VerifyAccess(token)
		if err != nil {
			logger.WarnWithContext(ctx, "Invalid access token").
				Err(err).
				Log()
			denied := apperrors.GetDomainError(err)
			if denied == nil {
				denied = apperrors.ErrTokenMalformed
			}
			abortWithMessage(c, denied, constants.MsgInvalidAccessToken)
			return
		}

		c.Set(constants.GinKeyClaims, claims)
		c.Set(constants.GinKeyUserID, claims.UserID)
		reqCtx := ctxutil.WithUserID(c.Request.Context(), claims.UserID)
		reqCtx = ctxutil.WithUserRole(reqCtx, claims.Role)
		c.Request = c.Request.WithContext(reqCtx)

		c.Next()
	}
}

// silentRefresh trades the refresh cookie for a new pair, sets both cookies
// and exposes the access token in the Authorization response header. Any
// failure leaves the request unauthenticated.
func (m *AuthMiddleware) silentRefresh(ctx context.Context, c *gin.Context) string {
	refreshToken := cookie.Get(c.Request, m.cookies.RefreshName)
	if refreshToken == "" || m.refresher == nil {
		return ""
	}

	user, tokens, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		logger.WarnWithContext(ctx, "Automatic token refresh failed").
			Err(err).
			Log()
		m.jar.Clear(c.Writer, m.cookies.RefreshName)
		return ""
	}

	if err := m.jar.Set(c.Writer, m.cookies.AccessName, tokens.AccessToken, tokens.AccessTTL); err != nil {
		logger.WarnWithContext(ctx, "Access cookie not set").Err(err).Log()
	}
	if err := m.jar.Set(c.Writer, m.cookies.RefreshName, tokens.RefreshToken, tokens.RefreshTTL); err != nil {
		logger.WarnWithContext(ctx, "Refresh cookie not set").Err(err).Log()
	}
	c.Header(constants.HeaderAuthorization, constants.BearerPrefix+tokens.AccessToken)

	logger.InfoWithContext(ctx, "Automatic token refresh successful").
		String("user_id", user.ID).
		Log()
	return tokens.AccessToken
}

// Claims returns the claims attached by RequireAuth.
func Claims(c *gin.Context) (*service.AccessClaims, bool) {
	v, ok := c.Get(constants.GinKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*service.AccessClaims)
	return claims, ok
}

func gate(check func(*service.AccessClaims) bool, denied *apperrors.DomainError) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			abortWithMessage(c, apperrors.ErrAuthRequired, constants.MsgAuthRequired)
			return
		}
		if !check(claims) {
			logger.WarnWithContext(c.Request.Context(), "Access gate denied").
				String("user_id", claims.UserID).
				String("reason", denied.Code).
				Log()
			AbortWithError(c, denied)
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return gate(func(cl *service.AccessClaims) bool {
		return strings.EqualFold(cl.Role, constants.RoleAdmin)
	}, apperrors.ErrInsufficientRole)
}

func RequireVerified() gin.HandlerFunc {
	return gate(func(cl *service.AccessClaims) bool { return cl.IsVerified }, apperrors.ErrAccountNotVerified)
}

func RequireActive() gin.HandlerFunc {
	return gate(func(cl *service.AccessClaims) bool { return cl.IsActive }, apperrors.ErrAccountInactive)
}
