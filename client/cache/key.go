package cache

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Key derives the cache key of a request. It is a pure function of the upper-cased method,
// the cleaned path and the sorted, encoded query: equal logical requests collide, any
// difference in path or parameters yields a different key.
func Key(method, requestPath string, query url.Values) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	location, merged := splitQuery(requestPath, query)
	builder := strings.Builder{}
	builder.WriteString(method)
	builder.WriteByte(' ')
	builder.WriteString(location)
	if encoded := merged.Encode(); encoded != "" {
		builder.WriteByte('?')
		builder.WriteString(encoded)
	}
	return builder.String()
}

// NormalizePath cleans a request path: leading slash, no dot segments, no trailing slash.
func NormalizePath(requestPath string) string {
	requestPath = strings.TrimSpace(requestPath)
	if requestPath == "" {
		return "/"
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	return path.Clean(requestPath)
}

func splitQuery(requestPath string, query url.Values) (string, url.Values) {
	merged := url.Values{}
	for k, values := range query {
		merged[k] = append(merged[k], values...)
	}
	parsed, err := url.Parse(strings.TrimSpace(requestPath))
	if err != nil {
		return (&url.URL{Path: NormalizePath(requestPath)}).EscapedPath(), merged
	}
	for k, values := range parsed.Query() {
		merged[k] = append(merged[k], values...)
	}
	location := (&url.URL{Path: NormalizePath(parsed.Path)}).EscapedPath()
	if parsed.IsAbs() {
		location = strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + location
	}
	return location, merged
}
