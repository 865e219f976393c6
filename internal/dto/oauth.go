package dto

import (
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/model"
)

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// OAuthCallbackQuery is bound from the query string on GET callbacks and
// from the form body on Apple's form_post callback.
type OAuthCallbackQuery struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

type OAuthLoginResponse struct {
	User      *UserResponse `json:"user"`
	Token     string        `json:"token"`
	ExpiresIn int           `json:"expires_in"`
	Provider  string        `json:"provider"`
	IsNewUser bool          `json:"is_new_user"`
}

// OAuthAccountResponse describes a linked account without its tokens.
type OAuthAccountResponse struct {
	ID             uint       `json:"id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	ProviderEmail  string     `json:"provider_email,omitempty"`
	Scope          string     `json:"scope,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func NewOAuthAccountResponse(a *model.OAuthAccount) OAuthAccountResponse {
	return OAuthAccountResponse{
		ID:             a.ID,
		Provider:       strings.ToLower(a.Provider),
		ProviderUserID: a.ProviderUserID,
		ProviderEmail:  a.ProviderEmail,
		Scope:          a.Scope,
		TokenExpiresAt: a.ExpiresAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func NewOAuthAccountsResponse(accounts []model.OAuthAccount) []OAuthAccountResponse {
	out := make([]OAuthAccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, NewOAuthAccountResponse(&accounts[i]))
	}
	return out
}
