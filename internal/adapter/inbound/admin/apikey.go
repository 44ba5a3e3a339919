package admin

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key matches no configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// argon2idParams follows the OWASP minimum configuration.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKey returns an Argon2id hash of the raw key in PHC format, suitable
// for the admin api_keys config list.
func HashKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// KeyVerifier validates admin API keys against a fixed set of Argon2id
// hashes loaded from config. An empty set rejects everything.
type KeyVerifier struct {
	hashes []string
}

// NewKeyVerifier creates a KeyVerifier over the given PHC-format hashes.
func NewKeyVerifier(hashes []string) *KeyVerifier {
	return &KeyVerifier{hashes: hashes}
}

// Verify reports whether rawKey matches any configured hash.
func (v *KeyVerifier) Verify(rawKey string) error {
	if rawKey == "" {
		return ErrInvalidKey
	}
	for _, hash := range v.hashes {
		match, err := safeCompare(rawKey, hash)
		if err != nil {
			continue
		}
		if match {
			return nil
		}
	}
	return ErrInvalidKey
}

// safeCompare wraps the argon2id comparison with panic recovery. The
// underlying argon2 library panics on malformed hashes with zero rounds or
// parallelism.
func safeCompare(rawKey, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, hash)
}
