package service

import (
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
)

// SessionTokens issues and checks the signed tokens that carry a user
// between the steps of signup and password reset.
type SessionTokens struct {
	codec           *TokenCodec
	registrationTTL time.Duration
	resetTTL        time.Duration
}

func NewSessionTokens(codec *TokenCodec, registrationTTL, resetTTL time.Duration) *SessionTokens {
	return &SessionTokens{
		codec:           codec,
		registrationTTL: registrationTTL,
		resetTTL:        resetTTL,
	}
}

func (s *SessionTokens) Issue(subjectID, step string, ttl time.Duration) (string, error) {
	return s.codec.issueSession(subjectID, step, ttl)
}

func (s *SessionTokens) IssueRegistration(subjectID string) (string, error) {
	return s.Issue(subjectID, constants.StepRegistration, s.registrationTTL)
}

func (s *SessionTokens) IssuePasswordReset(subjectID string) (string, error) {
	return s.Issue(subjectID, constants.StepPasswordReset, s.resetTTL)
}

// Verify returns the subject of token. Every failure collapses into
// ErrInvalidState so callers cannot tell why a token was refused.
func (s *SessionTokens) Verify(token, expectedStep string) (string, error) {
	claims, err := s.codec.verifySession(token)
	if err != nil {
		return "", apperrors.ErrInvalidState
	}
	if claims.Type != constants.TokenTypeSession || claims.Step != expectedStep || claims.SubjectUserID == "" {
		return "", apperrors.ErrInvalidState
	}
	return claims.SubjectUserID, nil
}
