package oauth

import (
	"context"
	"net/http"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

const facebookGraph = "https://graph.facebook.com/v19.0"

type Facebook struct {
	base
	profileURL     string
	permissionsURL string
}

func NewFacebook(creds config.ProviderCredentials, p *pool.ConnectionPool) *Facebook {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"email", "public_profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL:  facebookGraph + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &Facebook{
		base:           newBase(constants.ProviderFacebook, conf, p),
		profileURL:     facebookGraph + "/me?fields=id,email,name,first_name,last_name,picture.type(large),locale",
		permissionsURL: facebookGraph + "/me/permissions",
	}
}

type facebookUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Locale    string `json:"locale"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *Facebook) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u facebookUser
	var raw map[string]any
	if err := f.getJSON(ctx, f.profileURL, token.AccessToken, nil, &u, &raw); err != nil {
		return nil, f.profileError(err)
	}

	// Graph only returns confirmed addresses.
	return &Profile{
		Provider:       f.name,
		ProviderUserID: u.ID,
		Email:          u.Email,
		EmailVerified:  u.Email != "",
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       u.Name,
		AvatarURL:      u.Picture.Data.URL,
		Locale:         u.Locale,
		Raw:            raw,
	}, nil
}

// Revoke removes the app's permissions for the user, which invalidates token.
func (f *Facebook) Revoke(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, f.permissionsURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set(constants.HeaderAuthorization, constants.BearerPrefix+token)
	_, err = f.do(req)
	return err
}
