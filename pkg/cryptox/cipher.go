package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCipher is the root of every cipher failure: absent or malformed key
// material, or a payload that fails authentication on decrypt. A credential
// that trips this error is unusable and the owner must re-authorize.
var ErrCipher = errors.New("cryptox: cipher error")

// keyLabel domain-separates the derived AES key from any other use of the
// same master secret.
const keyLabel = "sfgate/token-cipher/v1"

// Cipher encrypts and decrypts token material at rest using AES-256-GCM.
// The 32-byte key is derived from the deployment's master secret via HKDF.
// Construct one per process and inject it; there is no ambient key state.
type Cipher struct {
	key []byte
}

// NewCipher derives the encryption key from the given master secret.
// The secret may be any length but must not be empty.
func NewCipher(masterSecret []byte) (*Cipher, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("%w: empty master secret", ErrCipher)
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterSecret, nil, []byte(keyLabel))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("%w: key derivation failed: %v", ErrCipher, err)
	}

	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext and returns base64url(nonce || ciphertext || tag).
// A fresh random nonce is used for every call.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce generation failed: %v", ErrCipher, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering or corruption fails the GCM tag
// check and surfaces as ErrCipher; callers must not mask it.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: malformed payload encoding", ErrCipher)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: payload shorter than nonce", ErrCipher)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed", ErrCipher)
	}

	return string(plaintext), nil
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	return gcm, nil
}
