package oauth

import (
	"errors"
	"sort"
	"sync"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
)

var errTelegramWidget = errors.New("telegram authenticates through the login widget")

// Registry resolves provider path names to configured adapters. Providers
// without credentials are known but not usable.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	telegram  *Telegram
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// NewRegistryFromConfig registers every provider that has credentials.
func NewRegistryFromConfig(cfg config.OAuthConfig, p *pool.ConnectionPool) *Registry {
	r := NewRegistry()

	if cfg.Google.Configured() {
		r.Register(NewGoogle(cfg.Google, p))
	}
	if cfg.GitHub.Configured() {
		r.Register(NewGitHub(cfg.GitHub, p))
	}
	if cfg.Facebook.Configured() {
		r.Register(NewFacebook(cfg.Facebook, p))
	}
	if cfg.Instagram.Configured() {
		r.Register(NewInstagram(cfg.Instagram, p))
	}
	if cfg.Twitter.Configured() {
		r.Register(NewTwitter(cfg.Twitter, p))
	}
	if cfg.LinkedIn.Configured() {
		r.Register(NewLinkedIn(cfg.LinkedIn, p))
	}
	if cfg.Apple.Configured() {
		r.Register(NewApple(cfg.Apple, p))
	}
	if cfg.TelegramBotToken != "" {
		r.SetTelegram(NewTelegram(cfg.TelegramBotToken, cfg.TelegramMaxAge))
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) SetTelegram(t *Telegram) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telegram = t
}

// Get resolves an authorization-code provider by path name.
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := constants.NormalizeProvider(name)
	if !ok {
		return nil, apperrors.ErrInvalidProvider
	}
	if provider == constants.ProviderTelegram {
		return nil, apperrors.WrapError(apperrors.ErrInvalidProvider, errTelegramWidget)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[provider]
	if !exists {
		return nil, apperrors.ErrProviderNotConfigured
	}
	return p, nil
}

func (r *Registry) Telegram() (*Telegram, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.telegram == nil {
		return nil, apperrors.ErrProviderNotConfigured
	}
	return r.telegram, nil
}

// Lookup returns the adapter for a stored provider name, used for
// refresh and revocation of linked accounts.
func (r *Registry) Lookup(provider string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[provider]
	return p, ok
}

// Configured lists usable provider names in sorted order.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers)+1)
	for name := range r.providers {
		names = append(names, name)
	}
	if r.telegram != nil {
		names = append(names, constants.ProviderTelegram)
	}
	sort.Strings(names)
	return names
}
