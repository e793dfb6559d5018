package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"github.com/viant/apiclient/client/auth/refresh"
	"github.com/viant/apiclient/client/auth/transport"
	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/client/cache"
	"github.com/viant/apiclient/client/sanitize"
	"github.com/viant/apiclient/schema"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds every dispatch, including a replay after refresh.
	DefaultTimeout = 15 * time.Second

	HeaderRequestID = "X-Request-ID"

	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
	contentTypeForm   = "application/x-www-form-urlencoded"
	contentTypeText   = "text/plain; charset=utf-8"
)

type contextKey string

const cacheKeyContextKey contextKey = "cacheKey"

// Client is the request pipeline every API call goes through: path normalisation, response
// cache, payload sanitisation, credential injection with refresh on 401, and typed errors.
type Client struct {
	baseURL     string
	apiPrefix   string
	passthrough []string
	timeout     time.Duration

	vault       *vault.Vault
	coordinator *refresh.Coordinator
	cache       *cache.Cache[*schema.Response]
	policy      *cache.Policy
	sanitizer   *sanitize.Sanitizer

	base      http.RoundTripper
	jar       http.CookieJar
	proactive time.Duration
	http      *http.Client
	inflight  singleflight.Group
	logger    glog.Logger
}

// New creates a pipeline for the API at baseURL, keeping credentials in v.
func New(baseURL string, v *vault.Vault, options ...Option) (*Client, error) {
	if v == nil {
		return nil, fmt.Errorf("client: vault was nil")
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	ret := &Client{
		baseURL:     strings.TrimRight(parsed.String(), "/"),
		apiPrefix:   DefaultAPIPrefix,
		passthrough: append([]string(nil), DefaultPassthroughPrefixes...),
		timeout:     DefaultTimeout,
		vault:       v,
		base:        http.DefaultTransport,
		logger:      glog.Nop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.cache == nil {
		ret.cache = cache.New[*schema.Response]()
	}
	if ret.policy == nil {
		ret.policy = cache.NewPolicy()
	}
	if ret.sanitizer == nil {
		ret.sanitizer = sanitize.New()
	}
	transportOptions := []transport.Option{
		transport.WithTransport(ret.base),
		transport.WithCookieJar(ret.jar),
		transport.WithUnauthorizedHandler(ret.onUnauthorized),
		transport.WithLogger(ret.logger),
	}
	if ret.coordinator != nil {
		transportOptions = append(transportOptions, transport.WithCoordinator(ret.coordinator))
	}
	if ret.proactive > 0 {
		transportOptions = append(transportOptions, transport.WithProactiveRefresh(ret.proactive))
	}
	roundTripper, err := transport.New(v, transportOptions...)
	if err != nil {
		return nil, err
	}
	ret.http = &http.Client{Transport: roundTripper}
	return ret, nil
}

// Request runs method against requestPath. Cacheable reads are answered from the cache when
// possible; concurrent misses for the same key share one network call.
func (c *Client) Request(ctx context.Context, method, requestPath string, body any, options ...RequestOption) (*schema.Response, error) {
	opts := newRequestOptions(options)
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	location, query := c.normalizePath(requestPath, opts.query)
	key := cache.Key(method, location, query)
	if !c.policy.Cacheable(method, location) {
		return c.dispatch(ctx, method, location, query, body, opts, key, false)
	}
	if opts.forceRefresh {
		c.cache.Delete(key)
	} else if cached, ok := c.cache.Get(key); ok {
		c.logger.WithContext(ctx).Debug("cache hit", "method", method, "path", location)
		ret := cached.Clone()
		ret.Cached = true
		return ret, nil
	}
	if !opts.shareable() || transport.HasAuthToken(ctx) {
		return c.dispatch(ctx, method, location, query, body, opts, key, true)
	}
	// the shared call outlives any single caller and is bounded by the client timeout only
	shared := context.WithoutCancel(ctx)
	flight := c.inflight.DoChan(key, func() (any, error) {
		return c.dispatch(shared, method, location, query, body, opts, key, true)
	})
	select {
	case <-ctx.Done():
		return nil, schema.NewTransientError(ctx.Err(), map[string]any{"method": method, "path": location})
	case outcome := <-flight:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Val.(*schema.Response).Clone(), nil
	}
}

func (c *Client) dispatch(ctx context.Context, method, location string, query url.Values, body any, opts *requestOptions, key string, cacheable bool) (*schema.Response, error) {
	payload, contentType, err := c.encodeBody(body, opts)
	if err != nil {
		return nil, schema.NewInvalidRequest(err, "failed to encode request body")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, cacheKeyContextKey, key)
	if opts.skipAuthRefresh {
		ctx = transport.WithoutRefresh(ctx)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(location, query), payload)
	if err != nil {
		return nil, schema.NewInvalidRequest(err, "failed to create request")
	}
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	for k, values := range opts.header {
		req.Header[k] = append([]string(nil), values...)
	}

	logger := c.logger.WithContext(ctx)
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.cache.Delete(key)
		var typed *goerrors.Error
		if goerrors.As(err, &typed) {
			logger.Warn("request failed", "method", method, "path", location, "requestID", requestID, "code", typed.TextCode)
			return nil, typed
		}
		logger.Warn("request dispatch failed", "method", method, "path", location, "requestID", requestID, "error", err)
		return nil, schema.NewTransientError(err, map[string]any{"method": method, "path": location, "requestID": requestID})
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.cache.Delete(key)
		return nil, schema.NewTransientError(err, map[string]any{"method": method, "path": location, "requestID": requestID})
	}
	logger.Debug("request completed", "method", method, "path", location, "status", resp.StatusCode, "elapsed", time.Since(started))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.cache.Delete(key)
		return nil, schema.NewStatusError(schema.NewResponse(resp.StatusCode, resp.Header, data))
	}
	responseType := resp.Header.Get("Content-Type")
	if responseType == "" || schema.IsJSONContentType(responseType) {
		if sanitized, changed, err := c.sanitizer.JSON(data); err == nil && changed {
			data = sanitized
		}
	}
	response := schema.NewResponse(resp.StatusCode, resp.Header, data)
	if cacheable {
		c.cache.Set(key, response.Clone(), c.policy.TTL(location))
	}
	return response, nil
}

// encodeBody returns the wire payload. Byte slices and readers are binary and never sanitized.
func (c *Client) encodeBody(body any, opts *requestOptions) (io.Reader, string, error) {
	var data []byte
	contentType := contentTypeJSON
	switch actual := body.(type) {
	case nil:
		return nil, opts.contentType, nil
	case []byte:
		return bytes.NewReader(actual), orDefault(opts.contentType, contentTypeBinary), nil
	case io.Reader:
		return actual, orDefault(opts.contentType, contentTypeBinary), nil
	case string:
		if !opts.skipSanitization {
			actual = c.sanitizer.String(actual)
		}
		return strings.NewReader(actual), orDefault(opts.contentType, contentTypeText), nil
	case url.Values:
		form := url.Values{}
		for k, values := range actual {
			for _, value := range values {
				if !opts.skipSanitization {
					value = c.sanitizer.String(value)
				}
				form.Add(k, value)
			}
		}
		return strings.NewReader(form.Encode()), orDefault(opts.contentType, contentTypeForm), nil
	case json.RawMessage:
		data = actual
	default:
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, "", err
		}
	}
	if !opts.skipSanitization {
		sanitized, _, err := c.sanitizer.JSON(data)
		if err != nil {
			return nil, "", err
		}
		data = sanitized
	}
	return bytes.NewReader(data), orDefault(opts.contentType, contentType), nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// onUnauthorized drops the cache entry of a request rejected with 401 before it is replayed.
func (c *Client) onUnauthorized(req *http.Request) {
	if key, ok := req.Context().Value(cacheKeyContextKey).(string); ok {
		c.cache.Delete(key)
	}
}

func (c *Client) Get(ctx context.Context, requestPath string, options ...RequestOption) (*schema.Response, error) {
	return c.Request(ctx, http.MethodGet, requestPath, nil, options...)
}

func (c *Client) Post(ctx context.Context, requestPath string, body any, options ...RequestOption) (*schema.Response, error) {
	return c.Request(ctx, http.MethodPost, requestPath, body, options...)
}

func (c *Client) Put(ctx context.Context, requestPath string, body any, options ...RequestOption) (*schema.Response, error) {
	return c.Request(ctx, http.MethodPut, requestPath, body, options...)
}

func (c *Client) Patch(ctx context.Context, requestPath string, body any, options ...RequestOption) (*schema.Response, error) {
	return c.Request(ctx, http.MethodPatch, requestPath, body, options...)
}

func (c *Client) Delete(ctx context.Context, requestPath string, options ...RequestOption) (*schema.Response, error) {
	return c.Request(ctx, http.MethodDelete, requestPath, nil, options...)
}

// ClearCache removes cached responses whose key contains substring; empty clears everything.
func (c *Client) ClearCache(substring string) int {
	return c.cache.DeleteMatching(substring)
}

func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Login stores a credential obtained outside the pipeline, e.g. from a login response.
func (c *Client) Login(ctx context.Context, record *vault.Record) error {
	if !record.HasToken() {
		return schema.NewInvalidRequest(nil, "credential has no token")
	}
	if err := c.vault.Write(ctx, record); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}

// Logout ends the session: waiting callers are rejected, an in-flight refresh is discarded,
// and the credential and cached responses are removed.
func (c *Client) Logout(ctx context.Context) error {
	if c.coordinator != nil {
		c.coordinator.Reset(ctx)
	}
	c.cache.Clear()
	return c.vault.Clear(ctx)
}

// CurrentUser returns the profile of the stored credential, or nil.
func (c *Client) CurrentUser(ctx context.Context) *vault.UserProfile {
	if record := c.vault.Read(ctx); record != nil {
		return record.User
	}
	return nil
}

// Fetch issues a GET and decodes the unwrapped payload into R.
func Fetch[R any](ctx context.Context, client Interface, requestPath string, options ...RequestOption) (*R, error) {
	response, err := client.Get(ctx, requestPath, options...)
	if err != nil {
		return nil, err
	}
	var result R
	if err = response.Decode(&result); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("failed to decode %v response", requestPath))
	}
	return &result, nil
}
