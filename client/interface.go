package client

import (
	"context"

	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/client/cache"
	"github.com/viant/apiclient/schema"
)

// Interface defines the pipeline operations exposed to application code
type Interface interface {
	// Request sends method to path; body is JSON encoded unless it is []byte, string, url.Values or io.Reader
	Request(ctx context.Context, method, path string, body any, options ...RequestOption) (*schema.Response, error)

	Get(ctx context.Context, path string, options ...RequestOption) (*schema.Response, error)

	Post(ctx context.Context, path string, body any, options ...RequestOption) (*schema.Response, error)

	Put(ctx context.Context, path string, body any, options ...RequestOption) (*schema.Response, error)

	Patch(ctx context.Context, path string, body any, options ...RequestOption) (*schema.Response, error)

	Delete(ctx context.Context, path string, options ...RequestOption) (*schema.Response, error)

	// ClearCache clears cached responses whose key contains substring, or all when empty
	ClearCache(substring string) int

	// CacheStats reports cached keys
	CacheStats() cache.Stats

	// Login stores a credential
	Login(ctx context.Context, record *vault.Record) error

	// Logout clears the credential, the cache and any in-flight refresh
	Logout(ctx context.Context) error

	// CurrentUser returns the signed-in user, if any
	CurrentUser(ctx context.Context) *vault.UserProfile
}

// Ensure Client implements Interface
var _ Interface = (*Client)(nil)
