package handler

import (
	"net/http"

	"github.com/Payphone-Digital/auth-service/internal/dto"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/Payphone-Digital/auth-service/internal/service"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/gin-gonic/gin"
)

// ForgotPassword answers the same way whether or not the email exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "ForgotPassword")
	req := middleware.ValidatedBody[dto.ForgotPasswordRequest](c)

	if err := h.authService.ForgotPassword(ctx, req.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ForgotPasswordResponse{EmailSent: true})
}

func (h *AuthHandler) VerifyResetOTP(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "VerifyResetOTP")
	req := middleware.ValidatedBody[dto.VerifyResetOTPRequest](c)

	token, err := h.authService.VerifyResetOTP(ctx, req.Email, req.OTP)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.VerifyResetOTPResponse{OTPVerified: true, SessionToken: token})
}

// ResetPassword takes the password_reset session token as bearer and logs
// the user in with the new password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "ResetPassword")
	req := middleware.ValidatedBody[dto.ResetPasswordRequest](c)

	_, tokens, err := h.authService.ResetPassword(ctx, service.ResetPasswordInput{
		SessionToken:    middleware.BearerToken(c),
		Password:        req.Password,
		ConfirmPassword: req.PasswordConfirm,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.session.issue(ctx, c, tokens)
	c.JSON(http.StatusOK, dto.ResetPasswordResponse{PasswordUpdated: true, Token: tokens.AccessToken})
}
