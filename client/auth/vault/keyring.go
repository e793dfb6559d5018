package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/viant/apiclient/client/auth/store"
)

const secretSize = 32

// Keyring supplies the per-installation secret the cipher derives its keys from.
type Keyring interface {
	Secret(ctx context.Context) ([]byte, error)
}

// KeyringFunc adapts a function to Keyring.
type KeyringFunc func(ctx context.Context) ([]byte, error)

func (f KeyringFunc) Secret(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticKeyring is a fixed secret, e.g. one resolved through scy from a secret manager.
type StaticKeyring []byte

func (k StaticKeyring) Secret(context.Context) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("static keyring is empty")
	}
	return append([]byte(nil), k...), nil
}

// storeKeyring generates a random install secret on first use and keeps it in a store.
type storeKeyring struct {
	mu     sync.Mutex
	store  store.Store
	key    string
	secret []byte
}

// NewStoreKeyring returns a Keyring persisting its secret under key.
func NewStoreKeyring(s store.Store, key string) Keyring {
	return &storeKeyring{store: s, key: key}
}

func (k *storeKeyring) Secret(ctx context.Context) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.secret != nil {
		return append([]byte(nil), k.secret...), nil
	}
	if k.store == nil {
		return nil, fmt.Errorf("keyring store is not configured")
	}
	data, ok, err := k.store.Get(ctx, k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load install secret: %w", err)
	}
	if ok {
		if secret, err := base64.StdEncoding.DecodeString(string(data)); err == nil && len(secret) == secretSize {
			k.secret = secret
			return append([]byte(nil), secret...), nil
		}
	}
	secret := make([]byte, secretSize)
	if _, err = io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate install secret: %w", err)
	}
	if err = k.store.Put(ctx, k.key, []byte(base64.StdEncoding.EncodeToString(secret))); err != nil {
		return nil, fmt.Errorf("failed to persist install secret: %w", err)
	}
	k.secret = secret
	return append([]byte(nil), secret...), nil
}
