package oauth

import (
	"context"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

// LinkedIn is read through its OpenID Connect userinfo endpoint.
type LinkedIn struct {
	base
	profileURL string
}

func NewLinkedIn(creds config.ProviderCredentials, p *pool.ConnectionPool) *LinkedIn {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &LinkedIn{
		base:       newBase(constants.ProviderLinkedIn, conf, p),
		profileURL: "https://api.linkedin.com/v2/userinfo",
	}
}

type linkedinUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        any    `json:"locale"`
}

func (l *LinkedIn) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u linkedinUser
	var raw map[string]any
	if err := l.getJSON(ctx, l.profileURL, token.AccessToken, nil, &u, &raw); err != nil {
		return nil, l.profileError(err)
	}

	fullName := u.Name
	if fullName == "" {
		fullName = joinName(u.GivenName, u.FamilyName)
	}

	return &Profile{
		Provider:       l.name,
		ProviderUserID: u.Sub,
		Email:          u.Email,
		EmailVerified:  u.EmailVerified,
		FirstName:      u.GivenName,
		LastName:       u.FamilyName,
		FullName:       fullName,
		AvatarURL:      u.Picture,
		Locale:         linkedinLocale(u.Locale),
		Raw:            raw,
	}, nil
}

// userinfo returns locale either as "en_US" or {"country":"US","language":"en"}.
func linkedinLocale(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]any:
		lang, _ := l["language"].(string)
		country, _ := l["country"].(string)
		if lang != "" && country != "" {
			return lang + "_" + country
		}
		return lang
	}
	return ""
}

func (l *LinkedIn) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return l.refresh(ctx, refreshToken)
}
