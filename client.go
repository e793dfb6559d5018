package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/afs/url"
	"github.com/viant/scy/auth/authorizer"
	_ "github.com/viant/scy/kms/blowfish"

	"github.com/viant/apiclient/client"
	"github.com/viant/apiclient/client/auth/refresh"
	"github.com/viant/apiclient/client/auth/store"
	"github.com/viant/apiclient/client/auth/transport"
	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/client/cache"
	"github.com/viant/apiclient/internal/config"
)

// ClientOptions defines options for configuring an API client.
type ClientOptions struct {
	BaseURL        string       `yaml:"baseURL" json:"baseURL" short:"u" long:"url" description:"API base URL"`
	APIPrefix      string       `yaml:"apiPrefix,omitempty" json:"apiPrefix,omitempty" long:"prefix" description:"API path prefix"`
	TimeoutSeconds int          `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty" long:"timeout" description:"request timeout in seconds"`
	StorageURL     string       `yaml:"storageURL,omitempty" json:"storageURL,omitempty" short:"s" long:"storage" description:"credential and cookie storage location, memory when empty"`
	Namespace      string       `yaml:"namespace,omitempty" json:"namespace,omitempty" short:"N" long:"namespace" description:"credential namespace"`
	Auth           *ClientAuth  `yaml:"auth,omitempty" json:"auth,omitempty"`
	Cache          *ClientCache `yaml:"cache,omitempty" json:"cache,omitempty"`

	// Store, if set, replaces the storage built from StorageURL.
	Store store.Store `yaml:"-" json:"-"`
	// Transport, if set, is the network transport under the credential layer.
	Transport http.RoundTripper `yaml:"-" json:"-"`
	Logger    glog.Logger       `yaml:"-" json:"-"`
}

// ClientAuth defines how an expired credential is renewed.
type ClientAuth struct {
	RefreshURL             string   `yaml:"refreshURL,omitempty" json:"refreshURL,omitempty" short:"r" long:"refresh" description:"refresh endpoint, relative to the base URL or absolute"`
	OAuth2ConfigURL        []string `yaml:"oauth2ConfigURL,omitempty" json:"oauth2ConfigURL,omitempty" short:"c" long:"config" description:"oauth2 config file"`
	EncryptionKey          string   `yaml:"encryptionKey,omitempty" json:"encryptionKey,omitempty" short:"k" long:"key" description:"oauth2 config encryption key"`
	Redirect               string   `yaml:"redirect,omitempty" json:"redirect,omitempty" long:"redirect" description:"sign-in location reported when refresh fails"`
	ProactiveLeewaySeconds int      `yaml:"proactiveLeewaySeconds,omitempty" json:"proactiveLeewaySeconds,omitempty" long:"leeway" description:"refresh expired JWTs before dispatch, leeway in seconds"`

	// OnFailure runs once per failed refresh, e.g. to navigate to the sign-in page.
	OnFailure func(ctx context.Context, err error) `yaml:"-" json:"-"`
}

// ClientCache defines the response cache allow-list.
type ClientCache struct {
	Rules             []cache.Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
	DenyMarkers       []string     `yaml:"denyMarkers,omitempty" json:"denyMarkers,omitempty"`
	DefaultTTLSeconds int          `yaml:"defaultTTLSeconds,omitempty" json:"defaultTTLSeconds,omitempty"`
}

// FromConfig converts a loaded config file into client options.
func FromConfig(cfg config.Config) *ClientOptions {
	ret := &ClientOptions{
		BaseURL:        cfg.BaseURL,
		APIPrefix:      cfg.APIPrefix,
		TimeoutSeconds: int(cfg.Timeout / time.Second),
		StorageURL:     cfg.StorageURL,
		Namespace:      cfg.Namespace,
		Auth: &ClientAuth{
			RefreshURL:             cfg.Refresh.URL,
			EncryptionKey:          cfg.Refresh.EncryptionKey,
			Redirect:               cfg.Refresh.Redirect,
			ProactiveLeewaySeconds: int(cfg.Refresh.ProactiveLeeway / time.Second),
		},
		Cache: &ClientCache{
			Rules:             cfg.Cache.Rules,
			DenyMarkers:       cfg.Cache.DenyMarkers,
			DefaultTTLSeconds: int(cfg.Cache.DefaultTTL / time.Second),
		},
	}
	if cfg.Refresh.OAuth2ConfigURL != "" {
		ret.Auth.OAuth2ConfigURL = []string{cfg.Refresh.OAuth2ConfigURL}
	}
	return ret
}

func (c *ClientOptions) Init() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Namespace == "" {
		c.Namespace = vault.DefaultNamespace
	}
	if c.Logger == nil {
		c.Logger = glog.Nop()
	}
	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}
}

func (c *ClientOptions) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return client.DefaultTimeout
}

// Policy builds the cache policy; without rules nothing is cached.
func (c *ClientOptions) Policy() *cache.Policy {
	if c.Cache == nil {
		return cache.NewPolicy()
	}
	ret := cache.NewPolicy(c.Cache.Rules...)
	if c.Cache.DenyMarkers != nil {
		ret.DenyMarkers = append([]string(nil), c.Cache.DenyMarkers...)
	}
	if c.Cache.DefaultTTLSeconds > 0 {
		ret.DefaultTTL = time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
	}
	return ret
}

func (c *ClientOptions) backend() store.Store {
	if c.Store != nil {
		return c.Store
	}
	if c.StorageURL == "" {
		return store.NewMemoryStore()
	}
	return store.NewFileStore(c.StorageURL)
}

// NewClient creates an API client with credential storage, session cookies, refresh and caching
// configured via ClientOptions. Storage is scoped to the origin of the base URL.
func NewClient(ctx context.Context, options *ClientOptions) (*client.Client, error) {
	if options == nil {
		return nil, fmt.Errorf("client options were empty")
	}
	options.Init()
	if options.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	scoped := store.ForOrigin(options.backend(), options.BaseURL)
	v, err := vault.New(ctx, scoped, vault.WithNamespace(options.Namespace), vault.WithLogger(options.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}
	jar, err := transport.NewPersistentJar(ctx, scoped, "", transport.WithJarLogger(options.Logger))
	if err != nil {
		return nil, err
	}

	opts := []client.Option{
		client.WithTransport(options.Transport),
		client.WithCookieJar(jar),
		client.WithTimeout(options.timeout()),
		client.WithCachePolicy(options.Policy()),
		client.WithLogger(options.Logger),
	}
	if options.APIPrefix != "" {
		opts = append(opts, client.WithAPIPrefix(options.APIPrefix))
	}
	refresher, err := options.refresher(ctx, jar)
	if err != nil {
		return nil, err
	}
	if refresher != nil {
		auth := options.Auth
		coordinatorOpts := []refresh.Option{refresh.WithLogger(options.Logger)}
		if auth.Redirect != "" {
			coordinatorOpts = append(coordinatorOpts, refresh.WithRedirect(auth.Redirect))
		}
		if auth.OnFailure != nil {
			coordinatorOpts = append(coordinatorOpts, refresh.WithFailureHandler(auth.OnFailure))
		}
		opts = append(opts, client.WithCoordinator(refresh.New(v, refresher, coordinatorOpts...)))
		if auth.ProactiveLeewaySeconds > 0 {
			opts = append(opts, client.WithProactiveRefresh(time.Duration(auth.ProactiveLeewaySeconds)*time.Second))
		}
	}
	return client.New(options.BaseURL, v, opts...)
}

// refresher selects the refresh endpoint when configured, otherwise the first loadable oauth2 config.
func (c *ClientOptions) refresher(ctx context.Context, jar http.CookieJar) (refresh.Refresher, error) {
	if c.Auth == nil {
		return nil, nil
	}
	if location := strings.TrimSpace(c.Auth.RefreshURL); location != "" {
		if !strings.Contains(location, "://") {
			location = url.Join(c.BaseURL, location)
		}
		// the refresh call shares the session cookies but never the credential transport
		httpClient := &http.Client{Transport: c.Transport, Jar: jar, Timeout: c.timeout()}
		return refresh.NewEndpointRefresher(location, httpClient), nil
	}
	if len(c.Auth.OAuth2ConfigURL) == 0 {
		return nil, nil
	}
	var errs []error
	for _, raw := range c.Auth.OAuth2ConfigURL {
		configURL := raw
		if c.Auth.EncryptionKey != "" {
			configURL += "|" + c.Auth.EncryptionKey
		}
		oauthCfg := &authorizer.OAuthConfig{ConfigURL: configURL}
		if err := authorizer.New().EnsureConfig(ctx, oauthCfg); err != nil {
			errs = append(errs, fmt.Errorf("failed to load oauth2 config %q: %w", raw, err))
			continue
		}
		return refresh.NewOAuth2Refresher(oauthCfg.Config), nil
	}
	return nil, errors.Join(errs...)
}
