// Package crypto seals configuration secrets such as the GitHub token with
// AES-256-GCM under a key derived from a UUID.
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
	"os"
	"strings"

	"github.com/google/uuid"
)

// EncryptedPrefix marks a sealed value
const EncryptedPrefix = "ENC:AES256:"

// ErrNotEncrypted is returned by Open for values without EncryptedPrefix
var ErrNotEncrypted = errors.New("invalid encrypted format: missing prefix")

// GenerateKey returns a new random key
func GenerateKey() string {
	return uuid.New().String()
}

// LoadKey reads a key from path. Surrounding whitespace is ignored.
func LoadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if _, err := uuid.Parse(key); err != nil {
		return "", fmt.Errorf("key file %s: invalid UUID: %w", path, err)
	}
	return key, nil
}

// deriveKeyFromUUID derives a 32-byte AES-256 key from a UUID string
func deriveKeyFromUUID(uuidStr string) ([]byte, error) {
	u, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID: %w", err)
	}
	hash := sha256.Sum256(u[:])
	return hash[:], nil
}

// Cipher seals and opens values under one key
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher creates a Cipher for keyUUID
func NewCipher(keyUUID string) (*Cipher, error) {
	key, err := deriveKeyFromUUID(keyUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns it base64 encoded behind EncryptedPrefix
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal
func (c *Cipher) Open(value string) (string, error) {
	if !IsEncrypted(value) {
		return "", ErrNotEncrypted
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Reveal opens value when it is sealed and returns it unchanged otherwise
func (c *Cipher) Reveal(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	return c.Open(value)
}

// IsEncrypted reports whether value carries EncryptedPrefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}
