package oauth

import (
	"context"
	"errors"
	"strings"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Apple posts the callback as a form (response_mode=form_post) and has no
// userinfo endpoint: the profile comes from the id_token returned by the
// token endpoint over TLS. ClientSecret is the pre-signed client secret JWT.
type Apple struct {
	base
	revokeURL string
}

func NewApple(creds config.ProviderCredentials, p *pool.ConnectionPool) *Apple {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"name", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://appleid.apple.com/auth/authorize",
			TokenURL:  "https://appleid.apple.com/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &Apple{
		base:      newBase(constants.ProviderApple, conf, p, oauth2.SetAuthURLParam("response_mode", "form_post")),
		revokeURL: "https://appleid.apple.com/auth/revoke",
	}
}

// FormPost reports that the callback arrives as a cross-site POST.
func (a *Apple) FormPost() bool { return true }

type appleIDClaims struct {
	jwt.RegisteredClaims
	Email          string `json:"email"`
	EmailVerified  any    `json:"email_verified"`
	IsPrivateEmail any    `json:"is_private_email"`
}

var errMissingIDToken = errors.New("token response carried no id_token")

func (a *Apple) Profile(_ context.Context, token *Token) (*Profile, error) {
	if token.IDToken == "" {
		return nil, a.profileError(errMissingIDToken)
	}

	var claims appleIDClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token.IDToken, &claims); err != nil {
		return nil, a.profileError(err)
	}
	if claims.Subject == "" {
		return nil, a.profileError(errors.New("id_token has no subject"))
	}

	first := ""
	if at := strings.IndexByte(claims.Email, '@'); at > 0 {
		first = claims.Email[:at]
	}

	return &Profile{
		Provider:       a.name,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  truthy(claims.EmailVerified),
		FirstName:      first,
		FullName:       first,
		Raw: map[string]any{
			"sub":              claims.Subject,
			"email":            claims.Email,
			"email_verified":   claims.EmailVerified,
			"is_private_email": claims.IsPrivateEmail,
		},
	}, nil
}

// Apple encodes booleans in id_token claims as either true or "true".
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

func (a *Apple) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return a.refresh(ctx, refreshToken)
}

func (a *Apple) Revoke(ctx context.Context, token string) error {
	return a.postForm(ctx, a.revokeURL, map[string]string{
		"client_id":       a.conf.ClientID,
		"client_secret":   a.conf.ClientSecret,
		"token":           token,
		"token_type_hint": "access_token",
	}, false)
}
