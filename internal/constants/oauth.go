package constants

import "strings"

// OAuth providers, upper-case as stored in oauth_accounts.provider
const (
	ProviderGoogle    = "GOOGLE"
	ProviderGitHub    = "GITHUB"
	ProviderFacebook  = "FACEBOOK"
	ProviderInstagram = "INSTAGRAM"
	ProviderTwitter   = "TWITTER"
	ProviderLinkedIn  = "LINKEDIN"
	ProviderTelegram  = "TELEGRAM"
	ProviderApple     = "APPLE"
)

var OAuthProviders = []string{
	ProviderGoogle,
	ProviderGitHub,
	ProviderFacebook,
	ProviderInstagram,
	ProviderTwitter,
	ProviderLinkedIn,
	ProviderTelegram,
	ProviderApple,
}

// NormalizeProvider maps a path segment such as "github" to its stored name.
// The second result is false for unknown providers.
func NormalizeProvider(name string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range OAuthProviders {
		if p == upper {
			return p, true
		}
	}
	return "", false
}

// Providers that never return an email get an address under this suffix.
// Such addresses are never mailed.
const SyntheticEmailSuffix = ".oauth"

// SyntheticEmail builds e.g. telegram_42@telegram.oauth
func SyntheticEmail(provider, subject string) string {
	p := strings.ToLower(provider)
	return p + "_" + subject + "@" + p + SyntheticEmailSuffix
}

func IsSyntheticEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), SyntheticEmailSuffix)
}
