package transport

import (
	"context"
)

type (
	contextKey string
)

const (
	// ContextAuthTokenKey carries a bearer token that overrides the vault for one request.
	ContextAuthTokenKey contextKey = "authToken"
	// ContextSkipRefreshKey marks a request whose 401 must be returned as is, e.g. a login call.
	ContextSkipRefreshKey contextKey = "skipRefresh"
)

// WithAuthToken returns a context whose requests carry token instead of the stored credential.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextAuthTokenKey, token)
}

// WithoutRefresh returns a context whose requests are never retried after a 401.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextSkipRefreshKey, true)
}

// HasAuthToken reports whether ctx overrides the stored credential.
func HasAuthToken(ctx context.Context) bool {
	return getAuthToken(ctx) != ""
}

func getAuthToken(ctx context.Context) string {
	if v := ctx.Value(ContextAuthTokenKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func skipRefresh(ctx context.Context) bool {
	skip, _ := ctx.Value(ContextSkipRefreshKey).(bool)
	return skip
}
