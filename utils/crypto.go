package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

var (
	documentAEAD cipher.AEAD

	ErrEncryptionNotInitialized = errors.New("encryption key not initialized")
	ErrCorruptCiphertext        = errors.New("ciphertext is corrupt or bound to another record")
)

// InitializeEncryption sets the AES-256 key used for document images at rest.
func InitializeEncryption(key string) error {
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be exactly 32 characters, got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}
	documentAEAD = aead
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// EncryptSensitiveData seals data with AES-GCM. The label is authenticated
// but not stored, so a sealed value only opens for the record it was
// written for. Empty input stays empty so scrubbed fields read as "".
func EncryptSensitiveData(data, label string) (string, error) {
	if documentAEAD == nil {
		return "", ErrEncryptionNotInitialized
	}
	if data == "" {
		return "", nil
	}

	nonce := make([]byte, documentAEAD.NonceSize(), documentAEAD.NonceSize()+len(data)+documentAEAD.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := documentAEAD.Seal(nonce, nonce, []byte(data), []byte(label))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func DecryptSensitiveData(encrypted, label string) (string, error) {
	if documentAEAD == nil {
		return "", ErrEncryptionNotInitialized
	}
	if encrypted == "" {
		return "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	n := documentAEAD.NonceSize()
	if len(raw) < n+documentAEAD.Overhead() {
		return "", ErrCorruptCiphertext
	}
	plain, err := documentAEAD.Open(nil, raw[:n], raw[n:], []byte(label))
	if err != nil {
		return "", ErrCorruptCiphertext
	}
	return string(plain), nil
}
