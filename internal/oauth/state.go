package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"golang.org/x/oauth2"
)

// State is carried between authorize and callback in the oauth_state
// cookie as base64url JSON.
type State struct {
	State        string `json:"state"`
	Provider     string `json:"provider"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// NewState draws 32 random bytes for the state value and, when pkce is set,
// a fresh code verifier.
func NewState(provider, redirectURL string, pkce bool, now time.Time) (*State, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate oauth state: %w", err)
	}

	s := &State{
		State:       base64.RawURLEncoding.EncodeToString(buf),
		Provider:    provider,
		RedirectURL: redirectURL,
		Timestamp:   now.UnixMilli(),
	}
	if pkce {
		s.CodeVerifier = oauth2.GenerateVerifier()
	}
	return s, nil
}

func (s *State) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeState(encoded string) (*State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// VerifyState checks the cookie against the callback's state parameter and
// provider. Every failure is the same INVALID_STATE_PARAM error.
func VerifyState(cookieValue, queryState, provider string, ttl time.Duration, now time.Time) (*State, error) {
	if cookieValue == "" || queryState == "" {
		return nil, apperrors.ErrOAuthStateMismatch
	}

	s, err := DecodeState(cookieValue)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrOAuthStateMismatch, err)
	}
	if subtle.ConstantTimeCompare([]byte(s.State), []byte(queryState)) != 1 {
		return nil, apperrors.ErrOAuthStateMismatch
	}
	if s.Provider != provider {
		return nil, apperrors.ErrOAuthStateMismatch
	}

	age := now.Sub(time.UnixMilli(s.Timestamp))
	if age < 0 || age > ttl {
		return nil, apperrors.ErrOAuthStateMismatch
	}
	return s, nil
}
