package service

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the closed claim set of a login access token.
type AccessClaims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	IsActive   bool   `json:"is_active"`
	Type       string `json:"type"`
	Step       string `json:"step"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// SessionClaims carry a multi-step flow between requests.
type SessionClaims struct {
	SubjectUserID string `json:"subject_user_id"`
	Step          string `json:"step"`
	Type          string `json:"type"`
	jwt.RegisteredClaims
}

// DecodedClaims is what an unverified decode can tell about any token class.
type DecodedClaims struct {
	UserID        string `json:"user_id,omitempty"`
	SubjectUserID string `json:"subject_user_id,omitempty"`
	Type          string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the zero time when the token carries no exp.
func (d *DecodedClaims) ExpiresAtTime() time.Time {
	if d.ExpiresAt == nil {
		return time.Time{}
	}
	return d.ExpiresAt.Time
}

// Keys is the asymmetric key material of both token classes.
type Keys struct {
	AccessPrivate  any
	AccessPublic   any
	RefreshPrivate any
	RefreshPublic  any
}

type TokenCodec struct {
	method     jwt.SigningMethod
	keys       Keys
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(cfg config.JWTConfig, keys Keys) (*TokenCodec, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil || !asymmetric(cfg.Algorithm) {
		return nil, fmt.Errorf("unsupported JWT algorithm %q", cfg.Algorithm)
	}
	if keys.AccessPrivate == nil || keys.AccessPublic == nil || keys.RefreshPrivate == nil || keys.RefreshPublic == nil {
		return nil, errors.New("all four JWT keys are required")
	}

	return &TokenCodec{
		method:     method,
		keys:       keys,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

func asymmetric(alg string) bool {
	return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") ||
		strings.HasPrefix(alg, "ES") || alg == "EdDSA"
}

// LoadKeys reads the four PEM files named in cfg using the parser that
// matches the configured algorithm family.
func LoadKeys(cfg config.JWTConfig) (Keys, error) {
	parsePrivate, parsePublic, err := pemParsers(cfg.Algorithm)
	if err != nil {
		return Keys{}, err
	}

	var keys Keys
	load := func(path string, parse func([]byte) (any, error), dst *any) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read key %s: %w", path, err)
		}
		key, err := parse(data)
		if err != nil {
			return fmt.Errorf("parse key %s: %w", path, err)
		}
		*dst = key
		return nil
	}

	if err := errors.Join(
		load(cfg.AccessPrivateKeyPath, parsePrivate, &keys.AccessPrivate),
		load(cfg.AccessPublicKeyPath, parsePublic, &keys.AccessPublic),
		load(cfg.RefreshPrivateKeyPath, parsePrivate, &keys.RefreshPrivate),
		load(cfg.RefreshPublicKeyPath, parsePublic, &keys.RefreshPublic),
	); err != nil {
		return Keys{}, err
	}
	return keys, nil
}

func pemParsers(alg string) (private, public func([]byte) (any, error), err error) {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return func(b []byte) (any, error) { return jwt.ParseRSAPrivateKeyFromPEM(b) },
			func(b []byte) (any, error) { return jwt.ParseRSAPublicKeyFromPEM(b) }, nil
	case strings.HasPrefix(alg, "ES"):
		return func(b []byte) (any, error) { return jwt.ParseECPrivateKeyFromPEM(b) },
			func(b []byte) (any, error) { return jwt.ParseECPublicKeyFromPEM(b) }, nil
	case alg == "EdDSA":
		return func(b []byte) (any, error) { return jwt.ParseEdPrivateKeyFromPEM(b) },
			func(b []byte) (any, error) { return jwt.ParseEdPublicKeyFromPEM(b) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported JWT algorithm %q", alg)
	}
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *TokenCodec) sign(claims jwt.Claims, key any) (string, error) {
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// IssueAccess signs a login token for the identity in claims. Type, step and
// registered claims are always overwritten.
func (c *TokenCodec) IssueAccess(claims AccessClaims) (string, error) {
	claims.Type = constants.TokenTypeLogin
	claims.Step = constants.StepAuthenticated
	claims.RegisteredClaims = c.registered(claims.UserID, c.accessTTL)
	return c.sign(claims, c.keys.AccessPrivate)
}

func (c *TokenCodec) IssueRefresh(userID string) (string, error) {
	claims := RefreshClaims{
		UserID:           userID,
		Type:             constants.TokenTypeRefresh,
		RegisteredClaims: c.registered(userID, c.refreshTTL),
	}
	return c.sign(claims, c.keys.RefreshPrivate)
}

// issueSession signs a session-state token with the access key.
func (c *TokenCodec) issueSession(subjectID, step string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		SubjectUserID:    subjectID,
		Step:             step,
		Type:             constants.TokenTypeSession,
		RegisteredClaims: c.registered(subjectID, ttl),
	}
	return c.sign(claims, c.keys.AccessPrivate)
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, key any) error {
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.WrapError(apperrors.ErrTokenExpired, err)
	}
	return apperrors.WrapError(apperrors.ErrTokenMalformed, err)
}

func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.keys.AccessPublic); err != nil {
		return nil, err
	}
	if claims.Type != constants.TokenTypeLogin || claims.UserID == "" {
		return nil, apperrors.WrapError(apperrors.ErrTokenMalformed, fmt.Errorf("unexpected token type %q", claims.Type))
	}
	return claims, nil
}

func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.keys.RefreshPublic); err != nil {
		return nil, err
	}
	if claims.Type != constants.TokenTypeRefresh || claims.UserID == "" {
		return nil, apperrors.WrapError(apperrors.ErrTokenMalformed, fmt.Errorf("unexpected token type %q", claims.Type))
	}
	return claims, nil
}

func (c *TokenCodec) verifySession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := c.parse(token, claims, c.keys.AccessPublic); err != nil {
		return nil, err
	}
	return claims, nil
}

// Decode reads the claims of any token class without verifying it. It is
// only used to learn exp when revoking.
func (c *TokenCodec) Decode(token string) (*DecodedClaims, error) {
	claims := &DecodedClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTokenMalformed, err)
	}
	return claims, nil
}
