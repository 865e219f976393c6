package hash

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest cost accepted for password hashes.
const MinBcryptCost = 10

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) BcryptHasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptHasher{cost: cost}
}

var _ Hasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(bytes), nil
}

func (BcryptHasher) Check(password string, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("bcrypt compare password hash: %w", err)
		}
	}
	return true, nil
}

// Cost reports the work factor of an existing bcrypt hash.
func (BcryptHasher) Cost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}

type Argon2IDHasher struct {
	params *argon2id.Params
}

func NewArgon2IDHasher() Argon2IDHasher {
	return Argon2IDHasher{params: argon2id.DefaultParams}
}

var _ Hasher = Argon2IDHasher{}

func (h Argon2IDHasher) Hash(password string) (string, error) {
	s, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("argon hash password: %w", err)
	}
	return s, nil
}

func (Argon2IDHasher) Check(password, hash string) (bool, error) {
	ok, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("argon compare password hash: %w", err)
	}
	return ok, nil
}
