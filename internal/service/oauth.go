package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"gorm.io/datatypes"
)

type OAuthDeps struct {
	Registry         *oauth.Registry
	Accounts         OAuthAccountStore
	Users            UserStore
	Profiles         *UserService
	Auth             *AuthService
	Notifier         *Notifier
	StateTTL         time.Duration
	AllowedRedirects []string
}

type OAuthService struct {
	registry         *oauth.Registry
	accounts         OAuthAccountStore
	users            UserStore
	profiles         *UserService
	auth             *AuthService
	notifier         *Notifier
	stateTTL         time.Duration
	allowedRedirects []string
	now              func() time.Time
}

func NewOAuthService(d OAuthDeps) *OAuthService {
	if d.StateTTL <= 0 {
		d.StateTTL = 15 * time.Minute
	}
	return &OAuthService{
		registry:         d.Registry,
		accounts:         d.Accounts,
		users:            d.Users,
		profiles:         d.Profiles,
		auth:             d.Auth,
		notifier:         d.Notifier,
		stateTTL:         d.StateTTL,
		allowedRedirects: d.AllowedRedirects,
		now:              time.Now,
	}
}

// AuthorizeResult is what the handler needs to start the provider flow.
type AuthorizeResult struct {
	Provider    string
	URL         string
	StateCookie string
	// FormPost is set for providers that call back with a cross-site POST.
	FormPost bool
}

type CallbackInput struct {
	Provider         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	StateCookie      string
}

type OAuthLoginResult struct {
	User        *model.User
	Tokens      *LoginTokens
	Provider    string
	IsNewUser   bool
	RedirectURL string
}

func (s *OAuthService) Providers() []string {
	return s.registry.Configured()
}

// redirectAllowed accepts absolute http(s) URLs whose scheme and host equal
// one of the configured entries and whose path sits under the entry's path.
// With no entries configured no redirect is accepted.
func (s *OAuthService) redirectAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	for _, entry := range s.allowedRedirects {
		allowed, err := url.Parse(strings.TrimSpace(entry))
		if err != nil || allowed.Host == "" {
			continue
		}
		if !strings.EqualFold(u.Scheme, allowed.Scheme) || !strings.EqualFold(u.Host, allowed.Host) {
			continue
		}
		if pathUnder(u.EscapedPath(), allowed.EscapedPath()) {
			return true
		}
	}
	return false
}

// pathUnder reports whether path equals base or is a segment-wise child of it.
func pathUnder(path, base string) bool {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return true
	}
	return path == base || strings.HasPrefix(path, base+"/")
}

func (s *OAuthService) Authorize(ctx context.Context, provider, redirectURL string) (*AuthorizeResult, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "OAuthAuthorize")

	p, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	if redirectURL != "" && !s.redirectAllowed(redirectURL) {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, fmt.Errorf("redirect_url %q is not allowed", redirectURL))
	}

	usesPKCE := false
	if pk, ok := p.(oauth.PKCE); ok {
		usesPKCE = pk.UsesPKCE()
	}
	state, err := oauth.NewState(p.Name(), redirectURL, usesPKCE, s.now())
	if err != nil {
		return nil, internalError(ctx, "Failed to create OAuth state", err)
	}
	cookie, err := state.Encode()
	if err != nil {
		return nil, internalError(ctx, "Failed to encode OAuth state", err)
	}

	result := &AuthorizeResult{
		Provider:    p.Name(),
		URL:         p.AuthCodeURL(oauth.AuthRequest{State: state.State, CodeVerifier: state.CodeVerifier}),
		StateCookie: cookie,
	}
	if fp, ok := p.(interface{ FormPost() bool }); ok {
		result.FormPost = fp.FormPost()
	}
	return result, nil
}

func (s *OAuthService) Callback(ctx context.Context, in CallbackInput) (*OAuthLoginResult, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "OAuthCallback")

	p, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, err
	}
	if in.Error != "" {
		logger.InfoWithContext(ctx, "OAuth authorization denied").
			String("provider", p.Name()).
			String("error", in.Error).
			String("error_description", in.ErrorDescription).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrOAuthDenied, errors.New(in.Error))
	}
	if in.Code == "" {
		return nil, apperrors.ErrMissingCode
	}

	state, err := oauth.VerifyState(in.StateCookie, in.State, p.Name(), s.stateTTL, s.now())
	if err != nil {
		return nil, err
	}

	token, err := p.Exchange(ctx, in.Code, state.CodeVerifier)
	if err != nil {
		logger.WarnWithContext(ctx, "OAuth code exchange failed").
			String("provider", p.Name()).
			Err(err).
			Log()
		return nil, err
	}
	profile, err := p.Profile(ctx, token)
	if err != nil {
		logger.WarnWithContext(ctx, "OAuth profile fetch failed").
			String("provider", p.Name()).
			Err(err).
			Log()
		return nil, err
	}

	return s.complete(ctx, profile, token, state.RedirectURL)
}

// TelegramLogin verifies a login widget payload and signs the user in.
func (s *OAuthService) TelegramLogin(ctx context.Context, data map[string]string) (*OAuthLoginResult, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "TelegramLogin")

	tg, err := s.registry.Telegram()
	if err != nil {
		return nil, err
	}
	profile, err := tg.Verify(data)
	if err != nil {
		logger.WarnWithContext(ctx, "Telegram login rejected").
			Err(err).
			Log()
		return nil, err
	}
	return s.complete(ctx, profile, nil, "")
}

func (s *OAuthService) complete(ctx context.Context, profile *oauth.Profile, token *oauth.Token, redirectURL string) (*OAuthLoginResult, error) {
	user, isNew, err := s.FindOrCreate(ctx, profile, token)
	if err != nil {
		return nil, err
	}
	if !user.IsVerified {
		return nil, apperrors.ErrAccountNotVerified
	}

	now := s.now()
	if err := s.users.Update(ctx, user.ID, map[string]any{
		"is_active":     true,
		"last_login_at": now,
	}); err != nil {
		return nil, internalError(ctx, "Failed to record login", err)
	}
	user.IsActive = true
	user.LastLoginAt = &now
	s.profiles.Invalidate(ctx, user)

	tokens, err := s.auth.IssueLoginTokens(user)
	if err != nil {
		return nil, err
	}

	if isNew {
		s.notifier.WelcomeAsync(ctx, user, profile.Provider)
	} else {
		s.notifier.LoginAlertAsync(ctx, user, profile.Provider)
	}
	s.notifier.Publish(ctx, queue.EventUserLogin, user.ID, map[string]string{"method": strings.ToLower(profile.Provider)})

	logger.InfoWithContext(ctx, "OAuth login").
		String("user_id", user.ID).
		String("provider", profile.Provider).
		Bool("new_user", isNew).
		Log()

	return &OAuthLoginResult{
		User:        user,
		Tokens:      tokens,
		Provider:    profile.Provider,
		IsNewUser:   isNew,
		RedirectURL: redirectURL,
	}, nil
}

// FindOrCreate resolves profile to a local user: an existing link wins,
// then a user with the same email (only when the provider vouches for it),
// then a new verified user. The bool reports whether the user was created.
func (s *OAuthService) FindOrCreate(ctx context.Context, profile *oauth.Profile, token *oauth.Token) (*model.User, bool, error) {
	if profile.ProviderUserID == "" {
		return nil, false, apperrors.WrapError(apperrors.ErrProviderProfile, errors.New("profile has no subject"))
	}
	if profile.Email == "" {
		profile.Email = constants.SyntheticEmail(profile.Provider, profile.ProviderUserID)
		profile.EmailVerified = false
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))

	user, found, err := s.findExisting(ctx, profile, token)
	if err != nil || found {
		return user, false, err
	}

	now := s.now()
	user = &model.User{
		Email:      profile.Email,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		FullName:   profile.FullName,
		AvatarURL:  profile.AvatarURL,
		Role:       constants.RoleConsumer,
		IsActive:   true,
		IsVerified: true,
	}
	if user.FullName == "" {
		user.FullName = model.FullName(user.FirstName, user.LastName)
	}
	if profile.EmailVerified {
		user.EmailVerifiedAt = &now
	}
	account := newAccount(profile, token)

	err = s.accounts.CreateWithUser(ctx, user, account)
	if err == nil {
		s.notifier.Publish(ctx, queue.EventUserRegistered, user.ID, map[string]string{"provider": strings.ToLower(profile.Provider)})
		s.notifier.Publish(ctx, queue.EventOAuthLinked, user.ID, map[string]string{"provider": strings.ToLower(profile.Provider)})
		return user, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, internalError(ctx, "Failed to create OAuth user", err)
	}

	// Lost a race with a concurrent callback for the same identity.
	user, found, err = s.findExisting(ctx, profile, token)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, apperrors.ErrEmailExists
	}
	return user, false, nil
}

func (s *OAuthService) findExisting(ctx context.Context, profile *oauth.Profile, token *oauth.Token) (*model.User, bool, error) {
	account, err := s.accounts.FindByProviderSubject(ctx, profile.Provider, profile.ProviderUserID)
	switch {
	case err == nil:
		if token != nil {
			s.storeTokens(ctx, account.ID, profile, token)
		}
		user, err := s.users.FindByID(ctx, account.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, false, apperrors.ErrAccountInactive
			}
			return nil, false, internalError(ctx, "Failed to load linked user", err)
		}
		return user, true, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, internalError(ctx, "Failed to look up OAuth account", err)
	}

	user, err := s.users.FindByEmail(ctx, profile.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, internalError(ctx, "Failed to look up user", err)
	}

	if !profile.EmailVerified || constants.IsSyntheticEmail(profile.Email) {
		return nil, false, apperrors.ErrEmailExists
	}

	if err := s.accounts.Create(ctx, newAccount(profile, token)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.findExisting(ctx, profile, nil)
		}
		return nil, false, internalError(ctx, "Failed to link OAuth account", err)
	}

	if !user.IsVerified {
		// A pending signup's password was never proven to belong to the owner.
		now := s.now()
		if err := s.users.Update(ctx, user.ID, map[string]any{
			"is_verified":       true,
			"email_verified_at": now,
			"password":          nil,
			"otp_code":          nil,
			"otp_expire_at":     nil,
		}); err != nil {
			return nil, false, internalError(ctx, "Failed to verify linked user", err)
		}
		user.IsVerified = true
		user.EmailVerifiedAt = &now
		user.Password = nil
		user.OTPCode, user.OTPExpireAt = nil, nil

		logger.WarnWithContext(ctx, "Pending signup claimed by OAuth login, password cleared").
			String("user_id", user.ID).
			String("provider", profile.Provider).
			Log()
	}
	s.profiles.Invalidate(ctx, user)
	s.notifier.Publish(ctx, queue.EventOAuthLinked, user.ID, map[string]string{"provider": strings.ToLower(profile.Provider)})

	logger.InfoWithContext(ctx, "OAuth account linked by email").
		String("user_id", user.ID).
		String("provider", profile.Provider).
		Log()
	return user, true, nil
}

func newAccount(profile *oauth.Profile, token *oauth.Token) *model.OAuthAccount {
	account := &model.OAuthAccount{
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		ProviderEmail:  profile.Email,
	}
	if raw, err := json.Marshal(profile.Raw); err == nil && profile.Raw != nil {
		account.ProviderProfileData = datatypes.JSON(raw)
	}
	if token != nil {
		account.AccessToken = token.AccessToken
		account.RefreshToken = token.RefreshToken
		account.TokenType = token.TokenType
		account.ExpiresAt = token.ExpiresAt
		account.Scope = token.Scope
	}
	return account
}

// storeTokens keeps the latest provider tokens on the link. A refresh
// token is only overwritten when the provider sent a new one.
func (s *OAuthService) storeTokens(ctx context.Context, accountID uint, profile *oauth.Profile, token *oauth.Token) {
	fields := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_at":   token.ExpiresAt,
		"scope":        token.Scope,
	}
	if token.RefreshToken != "" {
		fields["refresh_token"] = token.RefreshToken
	}
	if profile != nil {
		fields["provider_email"] = profile.Email
		if raw, err := json.Marshal(profile.Raw); err == nil && profile.Raw != nil {
			fields["provider_profile_data"] = datatypes.JSON(raw)
		}
	}
	if err := s.accounts.UpdateTokens(ctx, accountID, fields); err != nil {
		logger.WarnWithContext(ctx, "Failed to store provider tokens").
			Int64("account_id", int64(accountID)).
			Err(err).
			Log()
	}
}

func (s *OAuthService) Accounts(ctx context.Context, userID string) ([]model.OAuthAccount, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "OAuthAccounts")

	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(ctx, "Failed to list OAuth accounts", err)
	}
	return accounts, nil
}

// Unlink removes the link and revokes the provider token in the
// background where the provider supports it.
func (s *OAuthService) Unlink(ctx context.Context, userID, provider string) error {
	ctx = ctxutil.WithFunction(ctx, "service", "OAuthUnlink")

	name, ok := constants.NormalizeProvider(provider)
	if !ok {
		return apperrors.ErrInvalidProvider
	}
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return internalError(ctx, "Failed to look up OAuth account", err)
	}

	n, err := s.accounts.DeleteByUserAndProvider(ctx, userID, name)
	if err != nil {
		return internalError(ctx, "Failed to unlink OAuth account", err)
	}
	if n == 0 {
		return apperrors.ErrAccountNotFound
	}

	if p, ok := s.registry.Lookup(name); ok && account.AccessToken != "" {
		if r, ok := p.(oauth.Revoker); ok {
			token := account.AccessToken
			s.notifier.Go(ctx, "oauth.revoke", func(ctx context.Context) error {
				return r.Revoke(ctx, token)
			})
		}
	}
	s.notifier.Publish(ctx, queue.EventOAuthUnlinked, userID, map[string]string{"provider": strings.ToLower(name)})

	logger.InfoWithContext(ctx, "OAuth account unlinked").
		String("user_id", userID).
		String("provider", name).
		Log()
	return nil
}

// RefreshProviderToken renews the stored provider access token of a link.
func (s *OAuthService) RefreshProviderToken(ctx context.Context, userID, provider string) (*model.OAuthAccount, error) {
	ctx = ctxutil.WithFunction(ctx, "service", "RefreshProviderToken")

	name, ok := constants.NormalizeProvider(provider)
	if !ok {
		return nil, apperrors.ErrInvalidProvider
	}
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, internalError(ctx, "Failed to look up OAuth account", err)
	}

	p, ok := s.registry.Lookup(name)
	if !ok {
		return nil, apperrors.ErrProviderNotConfigured
	}
	r, ok := p.(oauth.Refresher)
	if !ok || account.RefreshToken == "" {
		return nil, apperrors.WrapError(apperrors.ErrBadRequest, fmt.Errorf("%s link has no refreshable token", strings.ToLower(name)))
	}

	token, err := r.Refresh(ctx, account.RefreshToken)
	if err != nil {
		logger.WarnWithContext(ctx, "Provider token refresh failed").
			String("provider", name).
			Err(err).
			Log()
		return nil, err
	}
	s.storeTokens(ctx, account.ID, nil, token)

	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.TokenType = token.TokenType
	account.ExpiresAt = token.ExpiresAt
	account.Scope = token.Scope
	return account, nil
}
