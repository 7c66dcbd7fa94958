package secrets

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for key derivation. These lean to the interactive
// side because derivation happens once at startup, not per request.
const (
	deriveMemory      uint32 = 64 * 1024
	deriveIterations  uint32 = 3
	deriveParallelism uint8  = 2
)

// ErrMissingPassphrase indicates an empty passphrase or salt.
var ErrMissingPassphrase = errors.New("secrets: passphrase and salt are required")

// DerivedKeyProvider derives a single AES-256 key from a passphrase and salt
// using Argon2id. It is an alternative to StaticKeyProvider for deployments
// that configure a passphrase instead of raw key material.
type DerivedKeyProvider struct {
	key []byte
}

// NewDerivedKeyProvider derives the key eagerly and returns the provider.
func NewDerivedKeyProvider(passphrase string, salt []byte) (*DerivedKeyProvider, error) {
	if passphrase == "" || len(salt) == 0 {
		return nil, ErrMissingPassphrase
	}

	key := argon2.IDKey([]byte(passphrase), salt, deriveIterations, deriveMemory, deriveParallelism, aesKeyLen)
	return &DerivedKeyProvider{key: key}, nil
}

// Key returns the derived key for any scope.
func (p *DerivedKeyProvider) Key(_ Scope) ([]byte, error) {
	k := make([]byte, len(p.key))
	copy(k, p.key)
	return k, nil
}
