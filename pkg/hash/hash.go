package hash

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrHasherNotFound = errors.New("hasher not found")

type Method string

const (
	Bcrypt   Method = "bcrypt"
	Argon2ID Method = "argon2id"
)

// Hasher performs one-way password hashing and verification.
type Hasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) (bool, error)
}

// Manager hashes new passwords with its default method and verifies
// existing hashes with whichever method produced them.
type Manager struct {
	mu            sync.RWMutex
	hashers       map[Method]Hasher
	defaultMethod Method
}

// New returns a Manager with bcrypt at cost and argon2id registered, using
// method for new hashes.
func New(method Method, bcryptCost int) (*Manager, error) {
	m := &Manager{
		hashers: map[Method]Hasher{
			Bcrypt:   NewBcryptHasher(bcryptCost),
			Argon2ID: NewArgon2IDHasher(),
		},
	}
	if err := m.SetDefault(method); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Hash(password string) (string, error) {
	h, err := m.Hasher(m.Default())
	if err != nil {
		return "", err
	}
	return h.Hash(password)
}

// Check verifies password against hash, detecting the method from the hash
// prefix so users keep working after PASSWORD_HASHER changes.
func (m *Manager) Check(password, hash string) (bool, error) {
	h, err := m.Hasher(Detect(hash))
	if err != nil {
		return false, err
	}
	return h.Check(password, hash)
}

func (m *Manager) Hasher(mt Method) (Hasher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if hasher, ok := m.hashers[mt]; ok {
		return hasher, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrHasherNotFound, mt)
}

// Extend registers a new Hasher under the given Method, overwriting if existing.
func (m *Manager) Extend(mt Method, hasher Hasher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashers[mt] = hasher
}

func (m *Manager) SetDefault(mt Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hashers[mt]; !ok {
		return fmt.Errorf("%w: %s", ErrHasherNotFound, mt)
	}
	m.defaultMethod = mt
	return nil
}

func (m *Manager) Default() Method {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultMethod
}

// Detect guesses the Method that produced hash.
func Detect(hash string) Method {
	if strings.HasPrefix(hash, "$argon2id$") {
		return Argon2ID
	}
	return Bcrypt
}
