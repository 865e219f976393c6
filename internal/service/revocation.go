package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/pkg/redis"
)

// RevocationBackend persists revoked token hashes until they expire.
type RevocationBackend interface {
	Insert(ctx context.Context, hash string, expireAt time.Time) error
	Exists(ctx context.Context, hash string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenDecoder reads exp from a token without verifying it.
type TokenDecoder interface {
	Decode(token string) (*DecodedClaims, error)
}

type RevocationStore struct {
	backend RevocationBackend
	decoder TokenDecoder
	now     func() time.Time
}

func NewRevocationStore(backend RevocationBackend, decoder TokenDecoder) *RevocationStore {
	return &RevocationStore{backend: backend, decoder: decoder, now: time.Now}
}

// TokenHash identifies a token by its exact string.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke records token as unusable until its own expiry. Revoking an
// already expired token is a successful no-op.
func (s *RevocationStore) Revoke(ctx context.Context, token string) error {
	claims, err := s.decoder.Decode(token)
	if err != nil {
		return err
	}

	exp := claims.ExpiresAtTime()
	if exp.IsZero() {
		return apperrors.WrapError(apperrors.ErrTokenMalformed, fmt.Errorf("token has no exp"))
	}
	if !exp.After(s.now()) {
		return nil
	}

	if err := s.backend.Insert(ctx, TokenHash(token), exp); err != nil {
		return apperrors.WrapError(apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := s.backend.Exists(ctx, TokenHash(token), s.now())
	if err != nil {
		return false, apperrors.WrapError(apperrors.ErrStoreUnavailable, err)
	}
	return revoked, nil
}

func (s *RevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.backend.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrStoreUnavailable, err)
	}
	return n, nil
}

// RedisRevocationBackend keeps one key per revoked token with a TTL equal
// to the token's remaining lifetime, so expiry purges itself.
type RedisRevocationBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisRevocationBackend(client *redis.Client) *RedisRevocationBackend {
	return &RedisRevocationBackend{client: client, prefix: "revoked:"}
}

func (b *RedisRevocationBackend) Insert(ctx context.Context, hash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		return nil
	}
	return b.client.SetMarker(ctx, b.prefix+hash, ttl)
}

func (b *RedisRevocationBackend) Exists(ctx context.Context, hash string, _ time.Time) (bool, error) {
	return b.client.Exists(ctx, b.prefix+hash)
}

func (b *RedisRevocationBackend) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
