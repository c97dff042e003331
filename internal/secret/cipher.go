// Package secret encrypts per-user OAuth credentials at rest.
package secret

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

// Key derivation parameters. The salt is fixed so the same SECRET_KEY always
// yields the same data key across restarts.
const (
	kdfIterations = 100000
	keyLength     = 32
)

var kdfSalt = []byte("voice_agent_salt")

// ErrCorrupt indicates ciphertext that cannot be authenticated or decoded.
var ErrCorrupt = errors.New("secret: corrupt ciphertext")

// Cipher performs AES-256-GCM encryption with a key derived from the
// application secret.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a data key from secretKey using PBKDF2-SHA256.
func NewCipher(secretKey string) (*Cipher, error) {
	if secretKey == "" {
		return nil, errors.New("secret: secret key is required")
	}

	key := pbkdf2.Key([]byte(secretKey), kdfSalt, kdfIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns a base64url string with the nonce
// prepended.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secret: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a string produced by Encrypt. Tampered or truncated input
// returns ErrCorrupt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrCorrupt
	}
	if len(sealed) < c.aead.NonceSize() {
		return nil, ErrCorrupt
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plaintext, nil
}
