package oauth

import (
	"context"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

// Twitter uses OAuth 2.0 with PKCE (S256) and HTTP Basic client auth at the
// token endpoint.
type Twitter struct {
	base
	profileURL string
	revokeURL  string
}

func NewTwitter(creds config.ProviderCredentials, p *pool.ConnectionPool) *Twitter {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"tweet.read", "users.read", "offline.access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://twitter.com/i/oauth2/authorize",
			TokenURL:  "https://api.twitter.com/2/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	t := &Twitter{
		base:       newBase(constants.ProviderTwitter, conf, p),
		profileURL: "https://api.twitter.com/2/users/me?user.fields=id,name,username,profile_image_url",
		revokeURL:  "https://api.twitter.com/2/oauth2/revoke",
	}
	t.pkce = true
	return t
}

func (t *Twitter) UsesPKCE() bool { return true }

type twitterUser struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

func (t *Twitter) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u twitterUser
	var raw map[string]any
	if err := t.getJSON(ctx, t.profileURL, token.AccessToken, nil, &u, &raw); err != nil {
		return nil, t.profileError(err)
	}

	fullName := u.Data.Name
	if fullName == "" {
		fullName = u.Data.Username
	}
	first, last := splitName(fullName)

	return &Profile{
		Provider:       t.name,
		ProviderUserID: u.Data.ID,
		FirstName:      first,
		LastName:       last,
		FullName:       fullName,
		AvatarURL:      u.Data.ProfileImageURL,
		Raw:            raw,
	}, nil
}

func (t *Twitter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return t.refresh(ctx, refreshToken)
}

func (t *Twitter) Revoke(ctx context.Context, token string) error {
	return t.postForm(ctx, t.revokeURL, map[string]string{
		"token":           token,
		"token_type_hint": "access_token",
	}, true)
}
