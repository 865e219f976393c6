package handler

import (
	"net/http"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/internal/dto"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/Payphone-Digital/auth-service/internal/service"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *service.AuthService
	session     sessionWriter
}

func NewAuthHandler(authService *service.AuthService, jar *cookie.Jar, cookies config.CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		session:     sessionWriter{jar: jar, cookies: cookies},
	}
}

// Signup registers an unverified account and returns the registration
// session token the OTP step must present.
func (h *AuthHandler) Signup(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "Signup")
	req := middleware.ValidatedBody[dto.SignupRequest](c)

	result, err := h.authService.Signup(ctx, service.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		logger.WarnWithContext(ctx, "Signup failed").
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SignupResponse{
		User:         dto.NewUserResponse(result.User),
		SessionToken: result.SessionToken,
		RequiresOTP:  true,
		OTPCode:      result.OTPCode,
	})
}

// VerifyOTP completes signup. The bearer is a registration session token
// or a login access token.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "VerifyOTP")
	req := middleware.ValidatedBody[dto.VerifyOTPRequest](c)

	user, tokens, err := h.authService.VerifyOTP(ctx, middleware.BearerToken(c), req.OTP)
	if err != nil {
		logger.WarnWithContext(ctx, "OTP verification failed").
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	h.session.issue(ctx, c, tokens)
	c.JSON(http.StatusOK, loginResponse(user, tokens))
}

func (h *AuthHandler) ResendOTP(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "ResendOTP")
	req := middleware.ValidatedBody[dto.ResendOTPRequest](c)

	code, err := h.authService.ResendOTP(ctx, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ResendOTPResponse{OTPSent: true, OTPCode: code})
}

func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "Login")
	req := middleware.ValidatedBody[dto.LoginRequest](c)

	user, tokens, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		logger.LogAuth("", "login", false)
		respondError(c, err)
		return
	}
	logger.LogAuth(user.ID, "login", true)

	h.session.issue(ctx, c, tokens)
	c.JSON(http.StatusOK, loginResponse(user, tokens))
}

// Refresh rotates the refresh token taken from the cookie or, for clients
// without cookies, the body. A body token is answered in the body.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "Refresh")

	presented := h.session.refreshCookie(c)
	fromBody := false
	if presented == "" {
		var req dto.RefreshTokenRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
			fromBody = presented != ""
		}
	}

	user, tokens, err := h.authService.Refresh(ctx, presented)
	if err != nil {
		logger.WarnWithContext(ctx, "Token refresh failed").
			Err(err).
			Log()
		if !fromBody && presented != "" {
			h.session.clear(c)
		}
		respondError(c, err)
		return
	}

	h.session.issue(ctx, c, tokens)
	resp := loginResponse(user, tokens)
	if fromBody {
		resp.RefreshToken = tokens.RefreshToken
	}
	c.JSON(http.StatusOK, resp)
}

// Logout always succeeds once authenticated; revocation problems are
// logged by the service.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "Logout")

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	access := middleware.BearerToken(c)
	if access == "" {
		access = cookie.Get(c.Request, h.session.cookies.AccessName)
	}
	h.authService.Logout(ctx, userID, access, h.session.refreshCookie(c))
	h.session.clear(c)

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logout successful"))
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "ChangePassword")
	req := middleware.ValidatedBody[dto.ChangePasswordRequest](c)

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	err := h.authService.ChangePassword(ctx, userID, service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password changed successfully"))
}

func (h *AuthHandler) Me(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "Me")

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	user, err := h.authService.Me(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse("User profile", dto.NewUserResponse(user)))
}
