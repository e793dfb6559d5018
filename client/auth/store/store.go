package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is the durable key/value layer behind the credential vault.
// The in-memory default is fine for tests and short-lived tools; NewFileStore survives restarts.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type MemoryStoreOption func(*memoryStore)

// WithEntry seeds the store, mostly useful for tests.
func WithEntry(key string, value []byte) MemoryStoreOption {
	return func(m *memoryStore) {
		m.values[key] = append([]byte(nil), value...)
	}
}

type memoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if value, ok := m.values[key]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return nil, false, nil
}

func (m *memoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func NewMemoryStore(options ...MemoryStoreOption) Store {
	ret := &memoryStore{values: map[string][]byte{}}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// scoped prefixes every key with a scope so that several origins can share one backend.
type scoped struct {
	scope string
	inner Store
}

// Scoped returns a view of inner where every key lives under scope.
func Scoped(inner Store, scope string) Store {
	scope = strings.Trim(scope, "/")
	if scope == "" {
		return inner
	}
	return &scoped{scope: scope + "/", inner: inner}
}

// ForOrigin scopes inner to the host of origin, e.g. "https://api.example.com:8443" -> "api.example.com_8443".
func ForOrigin(inner Store, origin string) Store {
	return Scoped(inner, OriginScope(origin))
}

// OriginScope converts an origin into a storage-safe scope name.
func OriginScope(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if _, rest, ok := strings.Cut(origin, "://"); ok {
		origin = rest
	}
	if host, _, ok := strings.Cut(origin, "/"); ok {
		origin = host
	}
	return strings.NewReplacer(":", "_", "/", "_").Replace(origin)
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.scope+key)
}

func (s *scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.inner.Put(ctx, s.scope+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.scope+key)
}

func (s *scoped) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.inner.Keys(ctx, s.scope+prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, s.scope)
	}
	return keys, nil
}
