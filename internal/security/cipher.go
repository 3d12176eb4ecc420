package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const appKeyBase64Prefix = "base64:"

// ErrMalformedCiphertext is returned when a stored value is not in nonce.ciphertext form.
var ErrMalformedCiphertext = errors.New("security: malformed ciphertext")

// Cipher encrypts values at rest with AES-256-GCM.
// Ciphertext is encoded as base64(nonce) "." base64(sealed).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from the configured app key.
// A "base64:" prefixed 32 byte key is used verbatim; anything else is hashed with SHA-256.
func NewCipher(appKey string) (*Cipher, error) {
	appKey = strings.TrimSpace(appKey)
	if appKey == "" {
		return nil, fmt.Errorf("security: empty app key")
	}

	var key []byte
	if strings.HasPrefix(appKey, appKeyBase64Prefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(appKey, appKeyBase64Prefix))
		if err == nil && len(decoded) == 32 {
			key = decoded
		}
	}
	if key == nil {
		sum := sha256.Sum256([]byte(appKey))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create GCM cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// GenerateAppKey returns a fresh "base64:" app key.
func GenerateAppKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("security: generate app key: %w", err)
	}
	return appKeyBase64Prefix + base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext with a fresh nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: create nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	sb := strings.Builder{}
	sb.WriteString(base64.StdEncoding.EncodeToString(nonce))
	sb.WriteRune('.')
	sb.WriteString(base64.StdEncoding.EncodeToString(sealed))
	return sb.String(), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	noncePart, sealedPart, ok := strings.Cut(encoded, ".")
	if !ok {
		return "", ErrMalformedCiphertext
	}
	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedPart)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt: %w", err)
	}
	return string(plaintext), nil
}
