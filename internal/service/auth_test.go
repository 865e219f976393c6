package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupVerifyLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{
		Email:     "  Jane@Example.com ",
		Password:  "password123",
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "123456",
	})
	require.NoError(t, err)
	assert.Len(t, res.OTPCode, 6)
	assert.NotEmpty(t, res.SessionToken)

	stored := env.users.get(t, res.User.ID)
	assert.Equal(t, "jane@example.com", stored.Email)
	assert.Equal(t, constants.RoleConsumer, stored.Role)
	assert.False(t, stored.IsVerified)
	assert.False(t, stored.IsActive)
	assert.Equal(t, "Jane Doe", stored.FullName)

	_, _, err = env.auth.Login(ctx, "jane@example.com", "password123")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotVerified)

	_, _, err = env.auth.VerifyOTP(ctx, res.SessionToken, "000000x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	user, tokens, err := env.auth.VerifyOTP(ctx, res.SessionToken, res.OTPCode)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.True(t, user.IsActive)
	assert.NotNil(t, user.EmailVerifiedAt)
	assert.NotEmpty(t, tokens.AccessToken)

	stored = env.users.get(t, user.ID)
	assert.Nil(t, stored.OTPCode)
	assert.True(t, stored.IsVerified)

	_, _, err = env.auth.VerifyOTP(ctx, res.SessionToken, res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyVerified)

	_, _, err = env.auth.Login(ctx, "jane@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, _, err = env.auth.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	user, tokens, err = env.auth.Login(ctx, "JANE@example.com", "password123")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)

	claims, err := env.codec.VerifyAccess(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, constants.RoleConsumer, claims.Role)
	assert.True(t, claims.IsVerified)
	assert.Equal(t, constants.StepAuthenticated, claims.Step)

	env.settle(t)
	otps := env.mailer.byTemplate(mail.TemplateOTP)
	require.Len(t, otps, 1)
	assert.Equal(t, res.OTPCode, otps[0].Data.Code)
	assert.Len(t, env.mailer.byTemplate(mail.TemplateWelcome), 1)
	assert.Len(t, env.mailer.byTemplate(mail.TemplateLoginAlert), 1)
	assert.Contains(t, env.publisher.types(), queue.EventUserRegistered)
	assert.Contains(t, env.publisher.types(), queue.EventUserVerified)
	assert.Contains(t, env.publisher.types(), queue.EventUserLogin)
}

func TestSignupRejectsExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Signup(ctx, SignupInput{Email: "dup@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = env.auth.Signup(ctx, SignupInput{Email: "DUP@example.com", Password: "password123"})
	assert.ErrorIs(t, err, apperrors.ErrEmailExists)
	assert.Equal(t, 1, env.users.count())
}

func TestSignupHidesOTPUnlessExposed(t *testing.T) {
	env := newTestEnv(t)
	env.auth.exposeOTP = false

	res, err := env.auth.Signup(context.Background(), SignupInput{Email: "hidden@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Empty(t, res.OTPCode)
}

func TestVerifyOTPExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{Email: "late@example.com", Password: "password123"})
	require.NoError(t, err)

	env.auth.now = func() time.Time { return time.Now().Add(20 * time.Minute) }
	_, _, err = env.auth.VerifyOTP(ctx, res.SessionToken, res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	stored := env.users.get(t, res.User.ID)
	assert.Nil(t, stored.OTPCode)
	assert.Nil(t, stored.OTPExpireAt)
}

func TestVerifyOTPBearerHandling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{Email: "bearer@example.com", Password: "password123"})
	require.NoError(t, err)

	_, _, err = env.auth.VerifyOTP(ctx, "", res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)

	_, _, err = env.auth.VerifyOTP(ctx, "not-a-token", res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	resetToken, err := env.sessions.IssuePasswordReset(res.User.ID)
	require.NoError(t, err)
	_, _, err = env.auth.VerifyOTP(ctx, resetToken, res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	// A login token for the same user is accepted unless revoked.
	tokens, err := env.auth.IssueLoginTokens(res.User)
	require.NoError(t, err)
	require.NoError(t, env.revocation.Revoke(ctx, tokens.AccessToken))
	_, _, err = env.auth.VerifyOTP(ctx, tokens.AccessToken, res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	fresh, err := env.auth.IssueLoginTokens(res.User)
	require.NoError(t, err)
	user, _, err := env.auth.VerifyOTP(ctx, fresh.AccessToken, res.OTPCode)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
}

func TestResendOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.ResendOTP(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	res, err := env.auth.Signup(ctx, SignupInput{Email: "resend@example.com", Password: "password123"})
	require.NoError(t, err)

	env.auth.generateOTP = func() (string, error) { return "654321", nil }
	code, err := env.auth.ResendOTP(ctx, "resend@example.com")
	require.NoError(t, err)
	assert.Equal(t, "654321", code)

	_, _, err = env.auth.VerifyOTP(ctx, res.SessionToken, res.OTPCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	env.settle(t)
	env.mailer.fail(errors.New("smtp down"))
	_, err = env.auth.ResendOTP(ctx, "resend@example.com")
	assert.ErrorIs(t, err, apperrors.ErrMailFailed)
	env.mailer.fail(nil)

	_, _, err = env.auth.VerifyOTP(ctx, res.SessionToken, "654321")
	require.NoError(t, err)

	_, err = env.auth.ResendOTP(ctx, "resend@example.com")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.verifiedUser(t, "rotate@example.com", "password123")

	_, tokens, err := env.auth.Login(ctx, "rotate@example.com", "password123")
	require.NoError(t, err)

	_, _, err = env.auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)
	_, _, err = env.auth.Refresh(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenMalformed)

	user, rotated, err := env.auth.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "rotate@example.com", user.Email)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	_, _, err = env.auth.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	env.revoked.setFail(true)
	_, _, err = env.auth.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.verifiedUser(t, "bye@example.com", "password123")

	user, tokens, err := env.auth.Login(ctx, "bye@example.com", "password123")
	require.NoError(t, err)

	env.auth.Logout(ctx, user.ID, tokens.AccessToken, tokens.RefreshToken)

	revoked, err := env.revocation.IsRevoked(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)
	_, _, err = env.auth.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	assert.False(t, env.users.get(t, user.ID).IsActive)

	// Revocation failures are absorbed.
	env.revoked.setFail(true)
	env.auth.Logout(ctx, user.ID, tokens.AccessToken, "")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.verifiedUser(t, "change@example.com", "password123")

	err := env.auth.ChangePassword(ctx, user.ID, ChangePasswordInput{
		CurrentPassword: "password123", NewPassword: "newpassword1", ConfirmPassword: "different1",
	})
	assert.ErrorIs(t, err, apperrors.ErrPasswordMismatch)

	err = env.auth.ChangePassword(ctx, user.ID, ChangePasswordInput{
		CurrentPassword: "wrong-pass", NewPassword: "newpassword1", ConfirmPassword: "newpassword1",
	})
	assert.ErrorIs(t, err, apperrors.ErrIncorrectPassword)

	err = env.auth.ChangePassword(ctx, user.ID, ChangePasswordInput{
		CurrentPassword: "password123", NewPassword: "newpassword1", ConfirmPassword: "newpassword1",
	})
	require.NoError(t, err)

	_, _, err = env.auth.Login(ctx, "change@example.com", "password123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, _, err = env.auth.Login(ctx, "change@example.com", "newpassword1")
	assert.NoError(t, err)
}

func TestMeServesProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.verifiedUser(t, "me@example.com", "password123")

	me, err := env.auth.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", me.Email)
	assert.True(t, me.IsVerified)

	_, err = env.auth.Me(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}
