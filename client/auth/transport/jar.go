package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	neturl "net/url"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/apiclient/client/auth/store"
)

// DefaultJarKey is the store key holding the cookie snapshot.
const DefaultJarKey = "session/cookies"

// PersistentJar is a cookiejar.Jar that writes every accepted cookie to a store and reloads
// them on startup, so the server session (refresh cookie, anti-forgery cookie) survives restarts.
type PersistentJar struct {
	mu    sync.RWMutex
	inner *cookiejar.Jar
	store store.Store
	key    string
	index  map[string]persistedCookie
	logger glog.Logger
}

// JarOption customises a PersistentJar.
type JarOption func(j *PersistentJar)

// WithJarLogger reports cookie snapshots that could not be stored or read.
func WithJarLogger(logger glog.Logger) JarOption {
	return func(j *PersistentJar) {
		if logger != nil {
			j.logger = logger
		}
	}
}

type persistedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	HostOnly bool      `json:"hostOnly,omitempty"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

type cookieSnapshot struct {
	Cookies []persistedCookie `json:"cookies"`
}

func (p persistedCookie) id() string {
	return p.Domain + "|" + p.Path + "|" + p.Name
}

func (p persistedCookie) expired(now time.Time) bool {
	return !p.Expires.IsZero() && now.After(p.Expires)
}

// NewPersistentJar creates a jar persisted under key; an empty key uses DefaultJarKey.
func NewPersistentJar(ctx context.Context, s store.Store, key string, options ...JarOption) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultJarKey
	}
	ret := &PersistentJar{inner: inner, store: s, key: key, index: map[string]persistedCookie{}, logger: glog.Nop()}
	for _, opt := range options {
		opt(ret)
	}
	if err = ret.load(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (j *PersistentJar) Cookies(u *neturl.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

func (j *PersistentJar) SetCookies(u *neturl.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
	now := time.Now()
	for _, c := range cookies {
		pc := toPersisted(u, c, now)
		if c.MaxAge < 0 || pc.expired(now) {
			delete(j.index, pc.id())
			continue
		}
		j.index[pc.id()] = pc
	}
	if err := j.save(context.Background()); err != nil {
		j.logger.Warn("failed to persist cookies", "key", j.key, "error", err)
	}
}

func toPersisted(u *neturl.URL, c *http.Cookie, now time.Time) persistedCookie {
	domain := strings.TrimPrefix(strings.TrimSpace(c.Domain), ".")
	hostOnly := domain == ""
	if hostOnly {
		domain = u.Host
		if host, _, err := net.SplitHostPort(domain); err == nil && host != "" {
			domain = host
		}
	}
	path := c.Path
	if strings.TrimSpace(path) == "" {
		path = "/"
	}
	expires := c.Expires
	if c.MaxAge > 0 {
		expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return persistedCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   strings.ToLower(domain),
		HostOnly: hostOnly,
		Path:     path,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func (j *PersistentJar) save(ctx context.Context) error {
	snap := cookieSnapshot{}
	for _, pc := range j.index {
		snap.Cookies = append(snap.Cookies, pc)
	}
	sort.Slice(snap.Cookies, func(i, k int) bool { return snap.Cookies[i].id() < snap.Cookies[k].id() })
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return j.store.Put(ctx, j.key, data)
}

func (j *PersistentJar) load(ctx context.Context) error {
	data, ok, err := j.store.Get(ctx, j.key)
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}
	if !ok {
		return nil
	}
	var snap cookieSnapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		// an unreadable snapshot only costs the session; start empty
		j.logger.Warn("discarding unreadable cookie snapshot", "key", j.key, "error", err)
		return nil
	}
	now := time.Now()
	for _, pc := range snap.Cookies {
		if pc.expired(now) || pc.Domain == "" {
			continue
		}
		scheme := "http"
		if pc.Secure {
			scheme = "https"
		}
		cookie := &http.Cookie{
			Name:     pc.Name,
			Value:    pc.Value,
			Path:     pc.Path,
			Expires:  pc.Expires,
			Secure:   pc.Secure,
			HttpOnly: pc.HttpOnly,
		}
		if !pc.HostOnly {
			cookie.Domain = pc.Domain
		}
		j.inner.SetCookies(&neturl.URL{Scheme: scheme, Host: pc.Domain, Path: pc.Path}, []*http.Cookie{cookie})
		j.index[pc.id()] = pc
	}
	return nil
}
