// Package seal encrypts short secrets (API tokens) for storage at rest
// using ChaCha20-Poly1305 with a random nonce per message.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey means the key is not exactly 32 bytes.
	ErrInvalidKey = errors.New("seal: key must be 32 bytes")

	// ErrCiphertextTooShort means the sealed value is shorter than a nonce.
	ErrCiphertextTooShort = errors.New("seal: ciphertext too short")
)

// Sealer encrypts and decrypts strings with a fixed symmetric key.
type Sealer struct {
	key []byte
}

// New creates a Sealer from a 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// NewFromBase64 creates a Sealer from a base64-encoded 32-byte key, the
// form the key takes in configuration.
func NewFromBase64(encoded string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("seal: decode key: %w", err)
	}
	return New(key)
}

// Seal encrypts a plaintext string. The result is base64 of nonce||ciphertext.
// Empty input seals to the empty string so that absent tokens stay absent.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. The empty string opens to the
// empty string.
func (s *Sealer) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("seal: decode: %w", err)
	}

	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("seal: open: %w", err)
	}
	return string(plaintext), nil
}
