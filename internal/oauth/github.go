package oauth

import (
	"context"
	"strconv"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"golang.org/x/oauth2"
)

type GitHub struct {
	base
	profileURL string
	emailsURL  string
}

func NewGitHub(creds config.ProviderCredentials, p *pool.ConnectionPool) *GitHub {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://github.com/login/oauth/authorize",
			TokenURL:  "https://github.com/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &GitHub{
		base:       newBase(constants.ProviderGitHub, conf, p),
		profileURL: "https://api.github.com/user",
		emailsURL:  "https://api.github.com/user/emails",
	}
}

var githubHeaders = map[string]string{constants.HeaderAccept: "application/vnd.github+json"}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Profile(ctx context.Context, token *Token) (*Profile, error) {
	var u githubUser
	var raw map[string]any
	if err := g.getJSON(ctx, g.profileURL, token.AccessToken, githubHeaders, &u, &raw); err != nil {
		return nil, g.profileError(err)
	}

	email := u.Email
	verified := email != ""
	if email == "" {
		var emails []githubEmail
		if err := g.getJSON(ctx, g.emailsURL, token.AccessToken, githubHeaders, &emails, nil); err != nil {
			return nil, g.profileError(err)
		}
		email, verified = pickGitHubEmail(emails)
	}

	fullName := u.Name
	if fullName == "" {
		fullName = u.Login
	}
	first, last := splitName(fullName)

	return &Profile{
		Provider:       g.name,
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Email:          email,
		EmailVerified:  verified,
		FirstName:      first,
		LastName:       last,
		FullName:       fullName,
		AvatarURL:      u.AvatarURL,
		Raw:            raw,
	}, nil
}

// pickGitHubEmail prefers the primary verified address, then the first one.
func pickGitHubEmail(emails []githubEmail) (string, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified
	}
	return "", false
}
