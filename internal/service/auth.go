package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"gorm.io/gorm"
)

// LoginTokens is a freshly minted access/refresh pair.
type LoginTokens struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

type SignupResult struct {
	User         *model.User
	SessionToken string
	// OTPCode is set only when OTP exposure is enabled outside production.
	OTPCode string
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

type AuthDeps struct {
	Users      UserStore
	Profiles   *UserService
	Codec      *TokenCodec
	Sessions   *SessionTokens
	Revocation *RevocationStore
	Hasher     PasswordHasher
	Notifier   *Notifier
	OTPExpiry  time.Duration
	ExposeOTP  bool
}

type AuthService struct {
	users       UserStore
	profiles    *UserService
	codec       *TokenCodec
	sessions    *SessionTokens
	revocation  *RevocationStore
	hasher      PasswordHasher
	notifier    *Notifier
	otpExpiry   time.Duration
	exposeOTP   bool
	generateOTP func() (string, error)
	now         func() time.Time
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.OTPExpiry <= 0 {
		d.OTPExpiry = 15 * time.Minute
	}
	return &AuthService{
		users:       d.Users,
		profiles:    d.Profiles,
		codec:       d.Codec,
		sessions:    d.Sessions,
		revocation:  d.Revocation,
		hasher:      d.Hasher,
		notifier:    d.Notifier,
		otpExpiry:   d.OTPExpiry,
		exposeOTP:   d.ExposeOTP,
		generateOTP: GenerateOTP,
		now:         time.Now,
	}
}

func internalError(ctx context.Context, msg string, err error) error {
	logger.ErrorWithContext(ctx, msg).Err(err).Log()
	return apperrors.WrapError(apperrors.ErrInternal, err)
}

// IssueLoginTokens mints the access/refresh pair for user.
func (s *AuthService) IssueLoginTokens(user *model.User) (*LoginTokens, error) {
	access, err := s.codec.IssueAccess(AccessClaims{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		IsActive:   user.IsActive,
	})
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	refresh, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return &LoginTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessTTL:    s.codec.AccessTTL(),
		RefreshTTL:   s.codec.RefreshTTL(),
	}, nil
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "Signup")
	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, apperrors.ErrEmailExists
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, internalError(ctx, "Failed to look up email", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(ctx, "Failed to hash password", err)
	}
	code, err := s.generateOTP()
	if err != nil {
		return nil, internalError(ctx, "Failed to generate OTP", err)
	}
	expireAt := s.now().Add(s.otpExpiry)

	user := &model.User{
		Email:       email,
		Password:    &hashed,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Phone:       strings.TrimSpace(in.Phone),
		Role:        constants.RoleConsumer,
		IsActive:    false,
		IsVerified:  false,
		OTPCode:     &code,
		OTPExpireAt: &expireAt,
	}
	user.FullName = model.FullName(user.FirstName, user.LastName)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrEmailExists
		}
		return nil, internalError(ctx, "Failed to create user", err)
	}

	sessionToken, err := s.sessions.IssueRegistration(user.ID)
	if err != nil {
		return nil, internalError(ctx, "Failed to issue registration token", err)
	}

	s.notifier.OTPAsync(ctx, user, code)
	s.notifier.Publish(ctx, queue.EventUserRegistered, user.ID, map[string]string{"email": user.Email})

	logger.InfoWithContext(ctx, "User signed up").
		String("user_id", user.ID).
		Log()

	result := &SignupResult{User: user, SessionToken: sessionToken}
	if s.exposeOTP {
		result.OTPCode = code
	}
	return result, nil
}

// otpSubject accepts either a registration session token or a login access
// token and returns the user it speaks for.
func (s *AuthService) otpSubject(ctx context.Context, bearer string) (string, error) {
	if bearer == "" {
		return "", apperrors.ErrAuthRequired
	}
	if subject, err := s.sessions.Verify(bearer, constants.StepRegistration); err == nil {
		return subject, nil
	}

	claims, err := s.codec.VerifyAccess(bearer)
	if err != nil {
		return "", apperrors.ErrInvalidState
	}
	revoked, err := s.revocation.IsRevoked(ctx, bearer)
	if err != nil || revoked {
		return "", apperrors.ErrTokenRevoked
	}
	return claims.UserID, nil
}

// clearExpiredOTP keeps the OTP columns from lingering after expiry.
func (s *AuthService) clearExpiredOTP(ctx context.Context, user *model.User) {
	if user.OTPExpireAt == nil || s.now().Before(*user.OTPExpireAt) {
		return
	}
	if err := s.users.Update(ctx, user.ID, map[string]any{
		"otp_code":      gorm.Expr("NULL"),
		"otp_expire_at": gorm.Expr("NULL"),
	}); err != nil {
		logger.WarnWithContext(ctx, "Failed to clear expired OTP").
			String("user_id", user.ID).
			Err(err).
			Log()
	}
}

func (s *AuthService) VerifyOTP(ctx context.Context, bearer, code string) (*model.User, *LoginTokens, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "VerifyOTP")

	userID, err := s.otpSubject(ctx, bearer)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrInvalidState
		}
		return nil, nil, internalError(ctx, "Failed to load user", err)
	}
	if user.IsVerified {
		return nil, nil, apperrors.ErrAlreadyVerified
	}

	now := s.now()
	consumed, err := s.users.ConsumeOTP(ctx, user.ID, code, now)
	if err != nil {
		return nil, nil, internalError(ctx, "Failed to consume OTP", err)
	}
	if !consumed {
		s.clearExpiredOTP(ctx, user)
		return nil, nil, apperrors.ErrInvalidOTP
	}

	if err := s.users.Update(ctx, user.ID, map[string]any{
		"is_verified":       true,
		"is_active":         true,
		"email_verified_at": now,
	}); err != nil {
		return nil, nil, internalError(ctx, "Failed to mark user verified", err)
	}
	user.IsVerified = true
	user.IsActive = true
	user.EmailVerifiedAt = &now
	user.OTPCode, user.OTPExpireAt = nil, nil
	s.profiles.Invalidate(ctx, user)

	tokens, err := s.IssueLoginTokens(user)
	if err != nil {
		return nil, nil, err
	}

	s.notifier.WelcomeAsync(ctx, user, "")
	s.notifier.Publish(ctx, queue.EventUserVerified, user.ID, nil)

	logger.InfoWithContext(ctx, "User verified").
		String("user_id", user.ID).
		Log()
	return user, tokens, nil
}

// ResendOTP replaces the pending OTP and mails it synchronously. The
// returned code is empty unless OTP exposure is enabled.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "ResendOTP")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.ErrUserNotFound
		}
		return "", internalError(ctx, "Failed to look up user", err)
	}
	if user.IsVerified {
		return "", apperrors.ErrAlreadyVerified
	}

	code, err := s.generateOTP()
	if err != nil {
		return "", internalError(ctx, "Failed to generate OTP", err)
	}
	expireAt := s.now().Add(s.otpExpiry)
	if err := s.users.SetOTP(ctx, user.ID, code, expireAt); err != nil {
		return "", internalError(ctx, "Failed to store OTP", err)
	}
	user.OTPCode, user.OTPExpireAt = &code, &expireAt
	s.profiles.Invalidate(ctx, user)

	if err := s.notifier.SendOTP(ctx, user, code); err != nil {
		logger.ErrorWithContext(ctx, "Failed to send OTP").
			String("user_id", user.ID).
			Err(err).
			Log()
		return "", err
	}

	if s.exposeOTP {
		return code, nil
	}
	return "", nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *LoginTokens, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "Login")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrInvalidCredentials
		}
		return nil, nil, internalError(ctx, "Failed to look up user", err)
	}
	if !user.IsVerified {
		return nil, nil, apperrors.ErrAccountNotVerified
	}
	if !user.HasPassword() {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	ok, err := s.hasher.Check(password, *user.Password)
	if err != nil {
		logger.WarnWithContext(ctx, "Password check failed").
			String("user_id", user.ID).
			Err(err).
			Log()
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	if !ok {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.Update(ctx, user.ID, map[string]any{
		"is_active":     true,
		"last_login_at": now,
	}); err != nil {
		return nil, nil, internalError(ctx, "Failed to record login", err)
	}
	user.IsActive = true
	user.LastLoginAt = &now
	s.profiles.Invalidate(ctx, user)

	tokens, err := s.IssueLoginTokens(user)
	if err != nil {
		return nil, nil, err
	}

	s.notifier.LoginAlertAsync(ctx, user, "")
	s.notifier.Publish(ctx, queue.EventUserLogin, user.ID, map[string]string{"method": "password"})

	logger.InfoWithContext(ctx, "User logged in").
		String("user_id", user.ID).
		Log()
	return user, tokens, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is minted from the current user record.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.User, *LoginTokens, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "Refresh")

	if refreshToken == "" {
		return nil, nil, apperrors.ErrAuthRequired
	}
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := s.revocation.IsRevoked(ctx, refreshToken)
	if err != nil {
		logger.ErrorWithContext(ctx, "Revocation check failed, refusing refresh").
			Err(err).
			Log()
		return nil, nil, apperrors.ErrTokenRevoked
	}
	if revoked {
		return nil, nil, apperrors.ErrTokenRevoked
	}

	user, err := s.profiles.GetProfile(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, nil, apperrors.ErrUnauthorized
		}
		return nil, nil, err
	}
	if !user.IsVerified {
		return nil, nil, apperrors.ErrAccountNotVerified
	}

	tokens, err := s.IssueLoginTokens(user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.revocation.Revoke(ctx, refreshToken); err != nil {
		logger.WarnWithContext(ctx, "Failed to revoke rotated refresh token").
			String("user_id", user.ID).
			Err(err).
			Log()
	}
	return user, tokens, nil
}

// Logout revokes both tokens and marks the user inactive. Revocation and
// update failures are logged and absorbed.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken, refreshToken string) {
	ctx = ctxutil.WithFunction(ctx, "service", "Logout")

	for kind, token := range map[string]string{"access": accessToken, "refresh": refreshToken} {
		if token == "" {
			continue
		}
		if err := s.revocation.Revoke(ctx, token); err != nil {
			logger.WarnWithContext(ctx, "Failed to revoke token on logout").
				String("token_kind", kind).
				String("user_id", userID).
				Err(err).
				Log()
		}
	}

	if err := s.users.Update(ctx, userID, map[string]any{"is_active": false}); err != nil {
		logger.WarnWithContext(ctx, "Failed to mark user inactive").
			String("user_id", userID).
			Err(err).
			Log()
	}
	s.profiles.Invalidate(ctx, &model.User{ID: userID})
	s.notifier.Publish(ctx, queue.EventUserLogout, userID, nil)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	ctx = ctxutil.WithFunction(ctx, "service", "ChangePassword")

	if in.NewPassword != in.ConfirmPassword {
		return apperrors.ErrPasswordMismatch
	}
	if len(in.NewPassword) < constants.MinPasswordLength {
		return apperrors.ErrInvalidInput
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrUserNotFound
		}
		return internalError(ctx, "Failed to load user", err)
	}
	if !user.HasPassword() {
		return apperrors.ErrIncorrectPassword
	}
	ok, err := s.hasher.Check(in.CurrentPassword, *user.Password)
	if err != nil || !ok {
		return apperrors.ErrIncorrectPassword
	}

	hashed, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return internalError(ctx, "Failed to hash password", err)
	}
	if err := s.users.Update(ctx, user.ID, map[string]any{"password": hashed}); err != nil {
		return internalError(ctx, "Failed to store password", err)
	}
	s.profiles.Invalidate(ctx, user)
	s.notifier.Publish(ctx, queue.EventUserPasswordChanged, user.ID, nil)

	logger.InfoWithContext(ctx, "Password changed").
		String("user_id", user.ID).
		Log()
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.profiles.GetProfile(ctx, userID)
}
