package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// ErrEncryptionUnavailable is returned by a Cipher that cannot seal or open; the vault
// reacts by falling back to the reversible encoding.
var ErrEncryptionUnavailable = errors.New("vault: encryption unavailable")

const (
	saltSize = 16
	keySize  = 32

	argonTime    = 1
	argonMemory  = 16 * 1024
	argonThreads = 2
)

// Cipher seals credential payloads. Sealed output must be self-contained.
type Cipher interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
}

// AESCipher is AES-256-GCM keyed per call with Argon2id(installSecret, salt).
// Sealed layout: salt(16) | nonce(12) | ciphertext+tag. The version marker is bound as
// additional data so a blob cannot be replayed under another format.
type AESCipher struct {
	keyring Keyring
}

func NewAESCipher(keyring Keyring) *AESCipher {
	return &AESCipher{keyring: keyring}
}

func (c *AESCipher) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	gcm, salt, err := c.newGCM(ctx, nil)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation failed: %v", ErrEncryptionUnavailable, err)
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, []byte(encryptedMarker)), nil
}

func (c *AESCipher) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize {
		return nil, fmt.Errorf("vault: sealed payload too short")
	}
	gcm, _, err := c.newGCM(ctx, sealed[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := sealed[saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("vault: sealed payload too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(encryptedMarker))
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// newGCM derives the per-call key; a nil salt draws a fresh random one.
func (c *AESCipher) newGCM(ctx context.Context, salt []byte) (cipher.AEAD, []byte, error) {
	if c == nil || c.keyring == nil {
		return nil, nil, fmt.Errorf("%w: keyring is not configured", ErrEncryptionUnavailable)
	}
	secret, err := c.keyring.Secret(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionUnavailable, err)
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, nil, fmt.Errorf("%w: salt generation failed: %v", ErrEncryptionUnavailable, err)
		}
	}
	key := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create cipher: %v", ErrEncryptionUnavailable, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create gcm: %v", ErrEncryptionUnavailable, err)
	}
	return gcm, salt, nil
}
