package cache

import (
	"strings"
	"time"

	"github.com/viant/apiclient/internal/collection"
)

// DefaultTTL applies when a caller stores a value without an explicit TTL.
const DefaultTTL = 5 * time.Minute

type (
	// Entry is a cached value with its absolute expiry.
	Entry[V any] struct {
		Key       string
		Value     V
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// Stats is a point-in-time view of the cache.
	Stats struct {
		Size int      `json:"size"`
		Keys []string `json:"keys"`
	}

	// Cache maps derived request keys to values with a per-entry TTL.
	// Expired entries are evicted lazily on lookup; there is no background sweeper.
	Cache[V any] struct {
		entries    *collection.SyncMap[string, *Entry[V]]
		defaultTTL time.Duration
		now        func() time.Time
	}

	options struct {
		defaultTTL time.Duration
		now        func() time.Time
	}

	Option func(*options)
)

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithClock sets the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func New[V any](opts ...Option) *Cache[V] {
	cfg := &options{defaultTTL: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return &Cache[V]{
		entries:    collection.NewSyncMap[string, *Entry[V]](),
		defaultTTL: cfg.defaultTTL,
		now:        cfg.now,
	}
}

// Get returns the value for key unless it is absent or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	entry, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	return entry.Value, true
}

// Has reports whether key holds a live value.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

func (c *Cache[V]) lookup(key string) (*Entry[V], bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		// only evict the entry we inspected, a concurrent Set may have replaced it
		c.entries.CompareAndDelete(key, func(current *Entry[V]) bool { return current == entry })
		return nil, false
	}
	return entry, true
}

// Set stores value under key; ttl <= 0 selects the default TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.entries.Put(key, &Entry[V]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
}

func (c *Cache[V]) Delete(key string) {
	c.entries.Delete(key)
}

// DeleteMatching removes every entry whose key contains substring; an empty substring clears the cache.
func (c *Cache[V]) DeleteMatching(substring string) int {
	if substring == "" {
		size := c.entries.Len()
		c.entries.Clear()
		return size
	}
	return c.entries.DeleteFunc(func(key string, _ *Entry[V]) bool {
		return strings.Contains(key, substring)
	})
}

func (c *Cache[V]) Clear() {
	c.entries.Clear()
}

// Stats reports the stored entries, including expired ones not yet evicted.
func (c *Cache[V]) Stats() Stats {
	keys := collection.SortedKeys(c.entries)
	return Stats{Size: len(keys), Keys: keys}
}
