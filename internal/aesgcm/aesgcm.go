// Package aesgcm provides at-rest encryption for cached query payloads using
// AES-256-GCM, with keys derived from a passphrase via PBKDF2-HMAC-SHA256 —
// the same algorithm pairing this module's source repository uses for its
// own data-at-rest protection.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 iteration count used when a caller doesn't
// specify one: 600,000, the OWASP 2023 recommendation.
const DefaultIterations = 600000

const keyLen = 32

// ErrCiphertextTooShort is returned when decrypting data too small to
// contain a nonce.
var ErrCiphertextTooShort = errors.New("aesgcm: ciphertext too short")

// DeriveKey stretches passphrase into a 32-byte AES-256 key using PBKDF2.
// iterations <= 0 falls back to DefaultIterations.
func DeriveKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLen, sha256.New)
}

// Sealer encrypts and decrypts byte payloads with a fixed 32-byte key.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte AES-256 key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keyLen {
		return nil, aes.KeySizeError(len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data previously produced by Seal.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return s.gcm.Open(nil, nonce, ciphertext, nil)
}
