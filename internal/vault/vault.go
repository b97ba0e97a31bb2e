// Package vault seals private room payloads at rest.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "lexyo private history v1"

var (
	// ErrNoSecret is returned when no operator secret is configured.
	ErrNoSecret = errors.New("vault: private secret is not configured")
	// ErrMalformed is returned for payloads that are not sealed by this vault.
	ErrMalformed = errors.New("vault: malformed payload")
)

// Vault encrypts strings with XChaCha20-Poly1305 keyed from an operator secret.
type Vault struct {
	aead cipher.AEAD
}

// New derives the cipher key from secret with HKDF-SHA256.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plain and returns a URL-safe base64 token (nonce || ciphertext).
func (v *Vault) Seal(plain string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (v *Vault) Open(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformed
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns+v.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plain), nil
}
