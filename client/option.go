package client

import (
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/apiclient/client/auth/refresh"
	"github.com/viant/apiclient/client/cache"
	"github.com/viant/apiclient/client/sanitize"
	"github.com/viant/apiclient/schema"
)

// Option represents option
type Option func(c *Client)

// WithCoordinator enables refresh on 401. Pipelines sharing a vault should share the coordinator.
func WithCoordinator(coordinator *refresh.Coordinator) Option {
	return func(c *Client) {
		c.coordinator = coordinator
	}
}

// WithCache shares a response cache between pipelines.
func WithCache(responses *cache.Cache[*schema.Response]) Option {
	return func(c *Client) {
		c.cache = responses
	}
}

// WithCachePolicy sets the allow-list of cacheable paths.
func WithCachePolicy(policy *cache.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithSanitizer(sanitizer *sanitize.Sanitizer) Option {
	return func(c *Client) {
		c.sanitizer = sanitizer
	}
}

// WithTransport sets the network transport under the credential layer.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		if transport != nil {
			c.base = transport
		}
	}
}

func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithAPIPrefix sets the prefix of relative paths; empty disables prefixing.
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.apiPrefix = strings.TrimRight(prefix, "/")
		if c.apiPrefix != "" && !strings.HasPrefix(c.apiPrefix, "/") {
			c.apiPrefix = "/" + c.apiPrefix
		}
	}
}

// WithPassthroughPrefixes replaces the prefixes exempt from the API prefix.
func WithPassthroughPrefixes(prefixes ...string) Option {
	return func(c *Client) {
		c.passthrough = append([]string(nil), prefixes...)
	}
}

// WithProactiveRefresh refreshes an expiring JWT before dispatch instead of waiting for a 401.
func WithProactiveRefresh(leeway time.Duration) Option {
	return func(c *Client) {
		c.proactive = leeway
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Client) {
		c.logger = glog.Ensure(logger)
	}
}
