package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

var (
	ErrNoKey         = errors.New("settings: encryption key missing")
	ErrInvalidSecret = errors.New("settings: invalid encrypted secret format")
)

// Cipher encrypts API keys with AES-256-GCM. Secrets are stored as three
// base64 parts joined by dots: nonce, tag and ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a cipher from a base64 encoded 32 byte key. An empty key
// yields a nil cipher, which stores secrets in clear.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: decoding key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("NewCipher: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plain string) (string, error) {
	if c == nil {
		return "", ErrNoKey
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("Encrypt: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plain), nil)
	data, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(data),
	}, "."), nil
}

func (c *Cipher) Decrypt(secret string) (string, error) {
	if c == nil {
		return "", ErrNoKey
	}
	parts := strings.Split(secret, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrInvalidSecret
	}
	var raw [3][]byte
	for i, p := range parts {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		raw[i] = b
	}
	if len(raw[0]) != gcmNonceSize {
		return "", ErrInvalidSecret
	}

	plain, err := c.aead.Open(nil, raw[0], append(raw[2], raw[1]...), nil)
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", err)
	}
	return string(plain), nil
}
