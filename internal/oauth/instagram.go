package oauth

import (
	"context"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

type Instagram struct {
	base
	profileURL string
}

func NewInstagram(creds config.ProviderCredentials, p *pool.ConnectionPool) *Instagram {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"user_profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://api.instagram.com/oauth/authorize",
			TokenURL:  "https://api.instagram.com/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &Instagram{
		base:       newBase(constants.ProviderInstagram, conf, p),
		profileURL: "https://graph.instagram.com/me?fields=id,username,account_type,media_count",
	}
}

type instagramUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile never carries an email; the address is synthesized from the id.
func (i *Instagram) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u instagramUser
	var raw map[string]any
	if err := i.getJSON(ctx, i.profileURL, token.AccessToken, nil, &u, &raw); err != nil {
		return nil, i.profileError(err)
	}

	return &Profile{
		Provider:       i.name,
		ProviderUserID: u.ID,
		Email:          constants.SyntheticEmail(i.name, u.ID),
		EmailVerified:  false,
		FirstName:      u.Username,
		FullName:       u.Username,
		Raw:            raw,
	}, nil
}
