package client

import (
	"net/http"
	"net/url"
)

type (
	requestOptions struct {
		skipSanitization bool
		forceRefresh     bool
		skipAuthRefresh  bool
		query            url.Values
		header           http.Header
		contentType      string
	}

	// RequestOption customises a single request.
	RequestOption func(o *requestOptions)
)

// WithSkipSanitization sends the body as is, e.g. for rich text the server sanitizes itself.
func WithSkipSanitization() RequestOption {
	return func(o *requestOptions) {
		o.skipSanitization = true
	}
}

// WithForceRefreshCache bypasses and replaces any cached response.
func WithForceRefreshCache() RequestOption {
	return func(o *requestOptions) {
		o.forceRefresh = true
	}
}

// WithoutAuthRefresh returns a 401 as an error instead of refreshing, e.g. for login calls.
func WithoutAuthRefresh() RequestOption {
	return func(o *requestOptions) {
		o.skipAuthRefresh = true
	}
}

func WithQuery(query url.Values) RequestOption {
	return func(o *requestOptions) {
		for k, values := range query {
			o.query[k] = append(o.query[k], values...)
		}
	}
}

func WithParam(name, value string) RequestOption {
	return func(o *requestOptions) {
		o.query.Add(name, value)
	}
}

func WithHeader(name, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Set(name, value)
	}
}

// WithContentType overrides the content type derived from the body.
func WithContentType(contentType string) RequestOption {
	return func(o *requestOptions) {
		o.contentType = contentType
	}
}

func newRequestOptions(options []RequestOption) *requestOptions {
	ret := &requestOptions{query: url.Values{}, header: http.Header{}}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// shareable reports whether concurrent identical reads may be answered by one network call.
// Caller specific headers or refresh handling keep a request on its own call.
func (o *requestOptions) shareable() bool {
	return len(o.header) == 0 && !o.skipAuthRefresh
}
