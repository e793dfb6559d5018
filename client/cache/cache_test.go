package cache

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestCache_TTL(t *testing.T) {
	clock := newClock()
	c := New[string](WithClock(clock.Now))
	c.Set("k", "v", time.Minute)

	clock.Advance(time.Minute - time.Millisecond)
	value, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)

	clock.Advance(2 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size, "expired entry should be purged on lookup")
}

func TestCache_Has_EvictsExpired(t *testing.T) {
	clock := newClock()
	c := New[int](WithClock(clock.Now))
	c.Set("a", 1, time.Second)
	assert.True(t, c.Has("a"))
	clock.Advance(time.Second)
	assert.False(t, c.Has("a"))
	assert.Empty(t, c.Stats().Keys)
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newClock()
	c := New[string](WithClock(clock.Now), WithDefaultTTL(10*time.Second))
	c.Set("a", "x", 0)
	clock.Advance(9 * time.Second)
	assert.True(t, c.Has("a"))
	clock.Advance(time.Second)
	assert.False(t, c.Has("a"))
}

func TestCache_DeleteMatching(t *testing.T) {
	c := New[string]()
	c.Set(Key("GET", "/api/practice-areas", nil), "a", 0)
	c.Set(Key("GET", "/api/practice-areas/7", nil), "b", 0)
	c.Set(Key("GET", "/api/news", nil), "c", 0)

	removed := c.DeleteMatching("practice-areas")
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"GET /api/news"}, c.Stats().Keys)

	removed = c.DeleteMatching("")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_PracticeAreasScenario(t *testing.T) {
	clock := newClock()
	c := New[string](WithClock(clock.Now))
	key := Key("GET", "/practice-areas", nil)
	c.Set(key, "payload", 300000*time.Millisecond)

	clock.Advance(100000 * time.Millisecond)
	value, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "payload", value)

	clock.Advance(50000 * time.Millisecond)
	c.DeleteMatching("practice-areas")
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestCache_ConcurrentSet(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("same", 1, time.Minute)
			c.Get("same")
		}(i)
	}
	wg.Wait()
	value, ok := c.Get("same")
	require.True(t, ok)
	assert.Equal(t, 1, value)
}

func TestKey(t *testing.T) {
	testCases := []struct {
		description string
		a           string
		b           string
		same        bool
	}{
		{description: "identical", a: Key("GET", "/api/items", url.Values{"page": {"1"}}), b: Key("get", "/api/items", url.Values{"page": {"1"}}), same: true},
		{description: "param order", a: Key("GET", "/api/items", url.Values{"a": {"1"}, "b": {"2"}}), b: Key("GET", "/api/items?b=2&a=1", nil), same: true},
		{description: "trailing slash", a: Key("GET", "/api/items/", nil), b: Key("GET", "/api/items", nil), same: true},
		{description: "different path", a: Key("GET", "/api/items", nil), b: Key("GET", "/api/item", nil), same: false},
		{description: "different param value", a: Key("GET", "/api/items", url.Values{"page": {"1"}}), b: Key("GET", "/api/items", url.Values{"page": {"2"}}), same: false},
		{description: "extra param", a: Key("GET", "/api/items", nil), b: Key("GET", "/api/items", url.Values{"page": {"1"}}), same: false},
		{description: "method", a: Key("GET", "/api/items", nil), b: Key("HEAD", "/api/items", nil), same: false},
		{description: "separator inside value", a: Key("GET", "/api/items", url.Values{"q": {"a&b=c"}}), b: Key("GET", "/api/items", url.Values{"q": {"a"}, "b": {"c"}}), same: false},
	}
	for _, testCase := range testCases {
		if testCase.same {
			assert.Equal(t, testCase.a, testCase.b, testCase.description)
			continue
		}
		assert.NotEqual(t, testCase.a, testCase.b, testCase.description)
	}
}

func TestPolicy(t *testing.T) {
	policy := NewPolicy(
		Rule{Pattern: "/practice-areas", TTL: 30 * time.Minute},
		Rule{Pattern: "/news", TTL: time.Minute},
		Rule{Pattern: "/news/featured", TTL: 10 * time.Minute},
		Rule{Pattern: "/credits", TTL: time.Hour},
		Rule{Pattern: "/editorials", TTL: time.Hour},
	)
	testCases := []struct {
		description string
		method      string
		path        string
		cacheable   bool
		ttl         time.Duration
	}{
		{description: "allow-listed read", method: "GET", path: "/api/practice-areas", cacheable: true, ttl: 30 * time.Minute},
		{description: "short lived class", method: "GET", path: "/api/news?page=2", cacheable: true, ttl: time.Minute},
		{description: "most specific rule", method: "GET", path: "/api/news/featured", cacheable: true, ttl: 10 * time.Minute},
		{description: "unsafe method", method: "POST", path: "/api/practice-areas", cacheable: false, ttl: 30 * time.Minute},
		{description: "not listed", method: "GET", path: "/api/users", cacheable: false, ttl: DefaultTTL},
		{description: "edit marker", method: "GET", path: "/api/practice-areas/edit/3", cacheable: false, ttl: DefaultTTL},
		{description: "upload marker", method: "GET", path: "/api/news/upload", cacheable: false, ttl: DefaultTTL},
		{description: "marker within a word", method: "GET", path: "/api/news/edit-draft", cacheable: false, ttl: DefaultTTL},
		{description: "marker letters inside a word", method: "GET", path: "/api/credits", cacheable: true, ttl: time.Hour},
		{description: "marker prefix of a word", method: "GET", path: "/api/editorials?page=1", cacheable: true, ttl: time.Hour},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.cacheable, policy.Cacheable(testCase.method, testCase.path), testCase.description)
		assert.Equal(t, testCase.ttl, policy.TTL(testCase.path), testCase.description)
	}
}
