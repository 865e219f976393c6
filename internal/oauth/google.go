package oauth

import (
	"context"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

type Google struct {
	base
	profileURL string
	revokeURL  string
}

func NewGoogle(creds config.ProviderCredentials, p *pool.ConnectionPool) *Google {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:  "https://oauth2.googleapis.com/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &Google{
		base:       newBase(constants.ProviderGoogle, conf, p, oauth2.AccessTypeOffline, oauth2.ApprovalForce),
		profileURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		revokeURL:  "https://oauth2.googleapis.com/revoke",
	}
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (g *Google) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u googleUser
	var raw map[string]any
	if err := g.getJSON(ctx, g.profileURL, token.AccessToken, nil, &u, &raw); err != nil {
		return nil, g.profileError(err)
	}

	return &Profile{
		Provider:       g.name,
		ProviderUserID: u.ID,
		Email:          u.Email,
		EmailVerified:  u.VerifiedEmail,
		FirstName:      u.GivenName,
		LastName:       u.FamilyName,
		FullName:       u.Name,
		AvatarURL:      u.Picture,
		Locale:         u.Locale,
		Raw:            raw,
	}, nil
}

func (g *Google) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return g.refresh(ctx, refreshToken)
}

func (g *Google) Revoke(ctx context.Context, token string) error {
	return g.postForm(ctx, g.revokeURL, map[string]string{"token": token}, false)
}
