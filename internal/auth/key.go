package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	bcryptCost = 10
)

// HashKey generates a bcrypt hash of an admin key for the admin_key_hash setting.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// KeyVerifier checks /admin candidates against the configured key.
type KeyVerifier struct {
	plain []byte
	hash  []byte
}

// NewKeyVerifier prefers hash when both are set. With neither, every check fails.
func NewKeyVerifier(plain, hash string) *KeyVerifier {
	v := &KeyVerifier{}
	if hash != "" {
		v.hash = []byte(hash)
	} else if plain != "" {
		v.plain = []byte(plain)
	}
	return v
}

// Configured reports whether any key is set.
func (v *KeyVerifier) Configured() bool {
	return len(v.hash) > 0 || len(v.plain) > 0
}

// Check reports whether candidate matches the admin key.
func (v *KeyVerifier) Check(candidate string) bool {
	switch {
	case candidate == "":
		return false
	case len(v.hash) > 0:
		return bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)) == nil
	case len(v.plain) > 0:
		return subtle.ConstantTimeCompare(v.plain, []byte(candidate)) == 1
	default:
		return false
	}
}
