package service

import (
	"context"
	"errors"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
)

// ForgotPassword starts a reset for a verified account. It succeeds for
// unknown and unverified emails too so the response says nothing about
// which addresses exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx = ctxutil.WithFunction(ctx, "service", "ForgotPassword")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.DebugWithContext(ctx, "Password reset requested for unknown email").Log()
			return nil
		}
		return internalError(ctx, "Failed to look up user", err)
	}
	if !user.IsVerified || constants.IsSyntheticEmail(user.Email) {
		return nil
	}

	code, err := s.generateOTP()
	if err != nil {
		return internalError(ctx, "Failed to generate OTP", err)
	}
	expireAt := s.now().Add(s.otpExpiry)
	if err := s.users.SetOTP(ctx, user.ID, code, expireAt); err != nil {
		return internalError(ctx, "Failed to store OTP", err)
	}
	user.OTPCode, user.OTPExpireAt = &code, &expireAt
	s.profiles.Invalidate(ctx, user)

	s.notifier.PasswordResetAsync(ctx, user, code)

	logger.InfoWithContext(ctx, "Password reset OTP issued").
		String("user_id", user.ID).
		Log()
	return nil
}

// VerifyResetOTP consumes the reset OTP and returns the password-reset
// session token for the final step.
func (s *AuthService) VerifyResetOTP(ctx context.Context, email, code string) (string, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "VerifyResetOTP")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.ErrInvalidOTP
		}
		return "", internalError(ctx, "Failed to look up user", err)
	}
	// A pending signup OTP lives in the same columns and must not open a reset.
	if !user.IsVerified {
		return "", apperrors.ErrInvalidOTP
	}

	consumed, err := s.users.ConsumeOTP(ctx, user.ID, code, s.now())
	if err != nil {
		return "", internalError(ctx, "Failed to consume OTP", err)
	}
	if !consumed {
		s.clearExpiredOTP(ctx, user)
		return "", apperrors.ErrInvalidOTP
	}

	token, err := s.sessions.IssuePasswordReset(user.ID)
	if err != nil {
		return "", internalError(ctx, "Failed to issue reset token", err)
	}
	return token, nil
}

type ResetPasswordInput struct {
	SessionToken    string
	Password        string
	ConfirmPassword string
}

// ResetPassword sets the new password and logs the user in. The session
// token is single use.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (*model.User, *LoginTokens, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "ResetPassword")

	if in.SessionToken == "" {
		return nil, nil, apperrors.ErrAuthRequired
	}
	userID, err := s.sessions.Verify(in.SessionToken, constants.StepPasswordReset)
	if err != nil {
		return nil, nil, apperrors.ErrInvalidState
	}
	revoked, err := s.revocation.IsRevoked(ctx, in.SessionToken)
	if err != nil || revoked {
		return nil, nil, apperrors.ErrInvalidState
	}

	if in.Password != in.ConfirmPassword {
		return nil, nil, apperrors.ErrPasswordMismatch
	}
	if len(in.Password) < constants.MinPasswordLength {
		return nil, nil, apperrors.ErrInvalidInput
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrInvalidState
		}
		return nil, nil, internalError(ctx, "Failed to load user", err)
	}
	if !user.IsVerified {
		return nil, nil, apperrors.ErrAccountNotVerified
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, internalError(ctx, "Failed to hash password", err)
	}
	now := s.now()
	if err := s.users.Update(ctx, user.ID, map[string]any{
		"password":      hashed,
		"is_active":     true,
		"last_login_at": now,
	}); err != nil {
		return nil, nil, internalError(ctx, "Failed to store password", err)
	}
	user.Password = &hashed
	user.IsActive = true
	user.LastLoginAt = &now
	s.profiles.Invalidate(ctx, user)

	if err := s.revocation.Revoke(ctx, in.SessionToken); err != nil {
		logger.WarnWithContext(ctx, "Failed to revoke reset session token").
			String("user_id", user.ID).
			Err(err).
			Log()
	}

	tokens, err := s.IssueLoginTokens(user)
	if err != nil {
		return nil, nil, err
	}
	s.notifier.Publish(ctx, queue.EventUserPasswordChanged, user.ID, map[string]string{"method": "reset"})

	logger.InfoWithContext(ctx, "Password reset completed").
		String("user_id", user.ID).
		Log()
	return user, tokens, nil
}
