package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/apiclient/client/auth/store"
)

const (
	DefaultNamespace = "apiclient.vault"

	encryptedMarker = "vault.v1:"
	encodedMarker   = "vault.b64:"

	credentialKey  = "credential"
	fallbackSuffix = ".fallback"
	keyringSuffix  = ".keyring"
	installKey     = "install"
)

var errUnrecognized = errors.New("vault: unrecognized payload")

type (
	// Vault persists the credential record. Encrypted blobs go to the primary slot and are
	// mirrored to the fallback slot; when the cipher is unavailable the fallback slot gets a
	// reversible encoding instead. Reads never fail: anything unreadable is treated as absent.
	Vault struct {
		store     store.Store
		namespace string
		cipher    Cipher
		logger    glog.Logger

		mu     sync.RWMutex
		cached *Record
		loaded bool
	}

	Option func(v *Vault)
)

// WithNamespace sets the key prefix of both slots.
func WithNamespace(namespace string) Option {
	return func(v *Vault) {
		if namespace = strings.Trim(namespace, "/"); namespace != "" {
			v.namespace = namespace
		}
	}
}

func WithCipher(cipher Cipher) Option {
	return func(v *Vault) {
		v.cipher = cipher
	}
}

// WithKeyring replaces the store generated install secret, keeping the default cipher.
func WithKeyring(keyring Keyring) Option {
	return func(v *Vault) {
		v.cipher = NewAESCipher(keyring)
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(v *Vault) {
		v.logger = glog.Ensure(logger)
	}
}

// New creates a vault over s and heals any unreadable entries left by earlier runs.
func New(ctx context.Context, s store.Store, options ...Option) (*Vault, error) {
	if s == nil {
		return nil, fmt.Errorf("vault: store was nil")
	}
	ret := &Vault{store: s, namespace: DefaultNamespace, logger: glog.Nop()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.cipher == nil {
		ret.cipher = NewAESCipher(NewStoreKeyring(s, ret.keyringKey()))
	}
	if removed, err := ret.Heal(ctx); err != nil {
		ret.logger.Warn("vault heal failed", "error", err)
	} else if len(removed) > 0 {
		ret.logger.Info("vault removed unreadable entries", "count", len(removed))
	}
	return ret, nil
}

func (v *Vault) primaryKey() string  { return v.namespace + "/" + credentialKey }
func (v *Vault) fallbackKey() string { return v.namespace + fallbackSuffix + "/" + credentialKey }
func (v *Vault) keyringKey() string  { return v.namespace + keyringSuffix + "/" + installKey }

// Read returns the stored record or nil. The decoded record is memoised until the next
// Write, Clear or Heal.
func (v *Vault) Read(ctx context.Context) *Record {
	v.mu.RLock()
	if v.loaded {
		ret := v.cached.Clone()
		v.mu.RUnlock()
		return ret
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loaded {
		v.cached = v.load(ctx)
		v.loaded = true
	}
	return v.cached.Clone()
}

// Token is a shortcut for the bearer token of the stored record.
func (v *Vault) Token(ctx context.Context) string {
	if record := v.Read(ctx); record != nil {
		return record.Token
	}
	return ""
}

func (v *Vault) load(ctx context.Context) *Record {
	for _, key := range []string{v.primaryKey(), v.fallbackKey()} {
		data, ok, err := v.store.Get(ctx, key)
		if err != nil {
			v.logger.Warn("vault read failed", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		record, err := v.decode(ctx, data)
		if err != nil {
			v.logger.Warn("vault entry is unreadable", "key", key, "error", err)
			continue
		}
		return record
	}
	return nil
}

// Write stores record, replacing any previous one. A nil record clears the vault.
// It fails only when neither slot could be written.
func (v *Vault) Write(ctx context.Context, record *Record) error {
	if record == nil {
		return v.Clear(ctx)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("vault: failed to encode record: %w", err)
	}
	blob := v.encode(ctx, payload)

	v.mu.Lock()
	defer v.mu.Unlock()
	primaryErr := v.store.Put(ctx, v.primaryKey(), blob)
	fallbackErr := v.store.Put(ctx, v.fallbackKey(), blob)
	switch {
	case primaryErr != nil && fallbackErr != nil:
		v.loaded = false
		return fmt.Errorf("vault: failed to persist record: %w", errors.Join(primaryErr, fallbackErr))
	case primaryErr != nil:
		v.logger.Warn("vault primary write failed, kept fallback copy", "error", primaryErr)
		_ = v.store.Delete(ctx, v.primaryKey())
	case fallbackErr != nil:
		v.logger.Warn("vault fallback write failed", "error", fallbackErr)
	}
	v.cached = record.Clone()
	v.loaded = true
	return nil
}

// encode seals payload, or falls back to the reversible encoding when the cipher is unavailable.
func (v *Vault) encode(ctx context.Context, payload []byte) []byte {
	sealed, err := v.cipher.Seal(ctx, payload)
	if err != nil {
		v.logger.Warn("vault encryption unavailable, using reversible encoding", "error", err)
		return []byte(encodedMarker + base64.StdEncoding.EncodeToString(payload))
	}
	return []byte(encryptedMarker + base64.RawURLEncoding.EncodeToString(sealed))
}

func (v *Vault) decode(ctx context.Context, data []byte) (*Record, error) {
	text := strings.TrimSpace(string(data))
	var payload []byte
	switch {
	case strings.HasPrefix(text, encryptedMarker):
		sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, encryptedMarker))
		if err != nil {
			return nil, fmt.Errorf("vault: malformed sealed payload: %w", err)
		}
		if payload, err = v.cipher.Open(ctx, sealed); err != nil {
			return nil, err
		}
	case strings.HasPrefix(text, encodedMarker):
		var err error
		if payload, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(text, encodedMarker)); err != nil {
			return nil, fmt.Errorf("vault: malformed encoded payload: %w", err)
		}
	default:
		return nil, errUnrecognized
	}
	record := &Record{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("vault: malformed record: %w", err)
	}
	return record, nil
}

// Clear removes the record from both slots.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cached = nil
	v.loaded = true
	var errs []error
	for _, key := range []string{v.primaryKey(), v.fallbackKey()} {
		if err := v.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Heal deletes every entry of both slots that does not carry a known format marker, or
// whose marker payload is not valid base64. Sealed entries are not decrypted here.
func (v *Vault) Heal(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var removed []string
	for _, prefix := range []string{v.namespace + "/", v.namespace + fallbackSuffix + "/"} {
		keys, err := v.store.Keys(ctx, prefix)
		if err != nil {
			return removed, fmt.Errorf("vault: failed to list %v: %w", prefix, err)
		}
		for _, key := range keys {
			data, ok, err := v.store.Get(ctx, key)
			if err != nil || !ok || recognized(data) {
				continue
			}
			if err = v.store.Delete(ctx, key); err != nil {
				v.logger.Warn("vault failed to remove unreadable entry", "key", key, "error", err)
				continue
			}
			removed = append(removed, key)
		}
	}
	if len(removed) > 0 {
		v.cached = nil
		v.loaded = false
	}
	return removed, nil
}

func recognized(data []byte) bool {
	text := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(text, encryptedMarker):
		_, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, encryptedMarker))
		return err == nil
	case strings.HasPrefix(text, encodedMarker):
		_, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, encodedMarker))
		return err == nil
	}
	return false
}
