// Package crypto provides the authenticated encryption used for vault entries.
//
// Keys are derived per scope (an owner id) from a process-wide master secret, so a
// leaked scope key reveals neither the master secret nor any other scope's key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the required size for AES-256 keys (32 bytes)
	KeySize = 32
	// NonceSize is the standard size for GCM nonces (12 bytes)
	NonceSize = 12
	// SaltSize is the number of digest bytes used as the PBKDF2 salt.
	SaltSize = 16
	// KDFIterations is the PBKDF2-SHA256 work factor.
	KDFIterations = 100_000
	// MinMasterKeySize is the shortest master secret accepted.
	MinMasterKeySize = 32

	saltSuffix = ":vault_scope_salt"
)

var (
	ErrInvalidKeySize     = errors.New("encryption key must be 32 bytes for AES-256")
	ErrMasterKeyTooShort  = errors.New("master key must be at least 32 bytes")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// DeriveKey derives the AES-256 key for scopeID from the master secret.
// The result is deterministic for a given (master, scopeID) pair.
func DeriveKey(master []byte, scopeID string) []byte {
	digest := sha256.Sum256([]byte(scopeID + saltSuffix))
	return pbkdf2.Key(master, digest[:SaltSize], KDFIterations, KeySize, sha256.New)
}

// Seal encrypts plaintext with AES-256-GCM. The returned blob is the random
// nonce followed by the ciphertext and tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. A corrupt blob or a wrong key yields ErrDecryptionFailed.
func Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecretBox seals payloads for a scope using a key derived from the master secret.
// Sealed payloads are base64 text so they fit a plain text column.
type SecretBox struct {
	master []byte
}

// NewSecretBox creates a SecretBox bound to the given master secret.
func NewSecretBox(master []byte) (*SecretBox, error) {
	if len(master) < MinMasterKeySize {
		return nil, ErrMasterKeyTooShort
	}

	// Copy key to avoid external mutation
	masterCopy := make([]byte, len(master))
	copy(masterCopy, master)

	return &SecretBox{master: masterCopy}, nil
}

// SealFor encrypts plaintext under the key derived for scopeID.
func (b *SecretBox) SealFor(scopeID string, plaintext []byte) (string, error) {
	blob, err := Seal(DeriveKey(b.master, scopeID), plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenFor decrypts a payload produced by SealFor for the same scopeID.
func (b *SecretBox) OpenFor(scopeID, sealed string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}
	return Open(DeriveKey(b.master, scopeID), blob)
}

// ParseMasterKey accepts either a base64-encoded secret or a raw string secret.
// Base64 wins when the value decodes to at least MinMasterKeySize bytes.
func ParseMasterKey(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) >= MinMasterKeySize {
		return decoded, nil
	}
	if len(value) < MinMasterKeySize {
		return nil, ErrMasterKeyTooShort
	}
	return []byte(value), nil
}

// GenerateKey generates a new random 32-byte master key.
// Returns the key as a base64-encoded string.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
