package transport

import (
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Option func(*RoundTripper)

// WithTransport sets the transport requests are dispatched on.
func WithTransport(transport http.RoundTripper) Option {
	return func(t *RoundTripper) {
		if transport != nil {
			t.transport = transport
		}
	}
}

// WithCoordinator enables the 401 refresh and replay protocol.
func WithCoordinator(coordinator Coordinator) Option {
	return func(t *RoundTripper) {
		t.coordinator = coordinator
	}
}

// WithCookieJar sends and stores cookies through jar; the anti-forgery cookie is read from it.
func WithCookieJar(jar http.CookieJar) Option {
	return func(t *RoundTripper) {
		t.jar = jar
	}
}

// WithUnauthorizedHandler is called for the first 401 of a request, before the refresh starts.
func WithUnauthorizedHandler(fn func(req *http.Request)) Option {
	return func(t *RoundTripper) {
		t.onUnauthorized = fn
	}
}

// WithProactiveRefresh refreshes a JWT whose exp is within leeway before dispatching.
func WithProactiveRefresh(leeway time.Duration) Option {
	return func(t *RoundTripper) {
		t.proactive = true
		t.leeway = leeway
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(t *RoundTripper) {
		t.logger = glog.Ensure(logger)
	}
}
