// Package crypto implements the symmetric decryption of stored provider
// API keys the data model calls out as "external" to the ProviderKey
// record itself: the blob doesn't know how it was encrypted, but
// something configured with ENCRYPTION_KEY has to turn it back into the
// raw key before a request can be assembled. No third-party encryption
// library appears anywhere in the example pack, so this uses the
// standard library's AES-GCM directly rather than reaching for one.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/forgecode/agentcore/internal/apperrors"
)

// Cipher encrypts and decrypts provider-key blobs with one configured
// key, deriving a 32-byte AES-256 key from whatever length secret is
// supplied so operators can set ENCRYPTION_KEY to any passphrase.
type Cipher struct {
	gcm cipher.AEAD
}

// New derives an AES-256-GCM cipher from secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption key must not be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt seals plaintext into a base64-encoded blob suitable for
// ProviderKey.EncryptedBlob.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt implements authz.KeyDecrypter, opening a blob produced by
// Encrypt with the same Cipher.
func (c *Cipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", apperrors.Auth("malformed provider key blob", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", apperrors.Auth("provider key blob too short", nil)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperrors.Auth("decrypt provider key", err)
	}
	return string(plaintext), nil
}
