package service

import (
	"context"
	"testing"

	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.verifiedUser(t, "reset@example.com", "password123")

	require.NoError(t, env.auth.ForgotPassword(ctx, "reset@example.com"))
	env.settle(t)

	resets := env.mailer.byTemplate(mail.TemplatePasswordReset)
	require.Len(t, resets, 1)
	code := resets[0].Data.Code
	require.Len(t, code, 6)

	_, err := env.auth.VerifyResetOTP(ctx, "reset@example.com", "bad")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	sessionToken, err := env.auth.VerifyResetOTP(ctx, "reset@example.com", code)
	require.NoError(t, err)

	_, err = env.auth.VerifyResetOTP(ctx, "reset@example.com", code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP, "OTP is single use")

	_, _, err = env.auth.ResetPassword(ctx, ResetPasswordInput{
		SessionToken: sessionToken, Password: "brandnew1", ConfirmPassword: "brandnew2",
	})
	assert.ErrorIs(t, err, apperrors.ErrPasswordMismatch)

	reset, tokens, err := env.auth.ResetPassword(ctx, ResetPasswordInput{
		SessionToken: sessionToken, Password: "brandnew1", ConfirmPassword: "brandnew1",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, reset.ID)
	assert.NotEmpty(t, tokens.AccessToken)

	_, _, err = env.auth.ResetPassword(ctx, ResetPasswordInput{
		SessionToken: sessionToken, Password: "another12", ConfirmPassword: "another12",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, _, err = env.auth.Login(ctx, "reset@example.com", "password123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, _, err = env.auth.Login(ctx, "reset@example.com", "brandnew1")
	assert.NoError(t, err)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.auth.ForgotPassword(ctx, "nobody@example.com"))

	_, err := env.auth.Signup(ctx, SignupInput{Email: "pending@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NoError(t, env.auth.ForgotPassword(ctx, "pending@example.com"))

	env.settle(t)
	assert.Empty(t, env.mailer.byTemplate(mail.TemplatePasswordReset))
}

func TestVerifyResetOTPRejectsSignupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{Email: "pending@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = env.auth.VerifyResetOTP(ctx, "pending@example.com", res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	_, err = env.auth.VerifyResetOTP(ctx, "ghost@example.com", "123456")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestResetPasswordRejectsWrongSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Signup(ctx, SignupInput{Email: "wrongstep@example.com", Password: "password123"})
	require.NoError(t, err)

	_, _, err = env.auth.ResetPassword(ctx, ResetPasswordInput{
		SessionToken: res.SessionToken, Password: "brandnew1", ConfirmPassword: "brandnew1",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, _, err = env.auth.ResetPassword(ctx, ResetPasswordInput{Password: "brandnew1", ConfirmPassword: "brandnew1"})
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)
}
