package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/apiclient/client/auth/refresh"
	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/schema"
)

const (
	HeaderAuthorization = "Authorization"
	// DefaultLeeway is how early a JWT is treated as expired by the proactive refresh.
	DefaultLeeway = 5 * time.Second
)

// Coordinator hands out a fresh token after the server rejected staleToken.
type Coordinator interface {
	Acquire(ctx context.Context, staleToken string) (string, error)
}

// RoundTripper attaches the stored credential to each request. On a 401 it obtains a new
// token from the coordinator and replays the request once; a second 401 is terminal.
type RoundTripper struct {
	vault          *vault.Vault
	coordinator    Coordinator
	transport      http.RoundTripper
	jar            http.CookieJar
	onUnauthorized func(req *http.Request)
	proactive      bool
	leeway         time.Duration
	now            func() time.Time
	logger         glog.Logger
}

func New(v *vault.Vault, options ...Option) (*RoundTripper, error) {
	if v == nil {
		return nil, fmt.Errorf("transport: vault was nil")
	}
	ret := &RoundTripper{
		vault:     v,
		transport: http.DefaultTransport,
		leeway:    DefaultLeeway,
		now:       time.Now,
		logger:    glog.Nop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.transport = WrapWithCookieJar(ret.transport, ret.jar)
	return ret, nil
}

func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}

	// 1) Send the request with whatever credential we hold.
	probe := clone(req)
	r.authorize(probe, token)
	resp, err := r.transport.RoundTrip(probe)
	if err != nil {
		return nil, err
	}

	// 2) If it wasn't a 401, just return it.
	if resp.StatusCode != http.StatusUnauthorized || r.coordinator == nil || skipRefresh(ctx) || getAuthToken(ctx) != "" {
		return resp, nil
	}
	// Close the prior body so we don't leak.
	discard(resp)
	if r.onUnauthorized != nil {
		r.onUnauthorized(req)
	}

	// 3) Wait for the single in-flight refresh.
	fresh, err := r.coordinator.Acquire(ctx, token)
	if err != nil {
		return nil, err
	}

	// 4) Replay the request once with the new Bearer header.
	retry := clone(req)
	r.authorize(retry, fresh)
	resp, err = r.transport.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		body := discard(resp)
		r.logger.WithContext(ctx).Warn("request rejected after credential refresh", "method", req.Method, "url", req.URL.Redacted())
		return nil, schema.NewRetryExhausted(schema.NewResponse(resp.StatusCode, resp.Header, body))
	}
	return resp, nil
}

// token resolves the credential for this attempt. The vault is read on every attempt so that a
// cleared credential is never sent.
func (r *RoundTripper) token(ctx context.Context) (string, error) {
	if token := getAuthToken(ctx); token != "" {
		return token, nil
	}
	record := r.vault.Read(ctx)
	if !record.HasToken() {
		return "", nil
	}
	if r.proactive && r.coordinator != nil && !skipRefresh(ctx) && record.Expired(r.now(), r.leeway) {
		r.logger.WithContext(ctx).Debug("credential expired, refreshing before dispatch")
		return r.coordinator.Acquire(ctx, record.Token)
	}
	return record.Token, nil
}

func (r *RoundTripper) authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
		return
	}
	if isSafeMethod(req.Method) {
		return
	}
	if xsrf := r.xsrfToken(req); xsrf != "" {
		req.Header.Set(refresh.XSRFHeader, xsrf)
	}
}

func (r *RoundTripper) xsrfToken(req *http.Request) string {
	if cookie, err := req.Cookie(refresh.XSRFCookie); err == nil {
		return cookie.Value
	}
	if r.jar == nil {
		return ""
	}
	for _, cookie := range r.jar.Cookies(req.URL) {
		if cookie.Name == refresh.XSRFCookie {
			return cookie.Value
		}
	}
	return ""
}
