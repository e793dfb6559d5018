package client

import (
	"net/url"
	"strings"
)

// DefaultAPIPrefix is prepended to relative request paths.
const DefaultAPIPrefix = "/api"

// DefaultPassthroughPrefixes are served outside the API prefix.
var DefaultPassthroughPrefixes = []string{"/uploads/", "/assets/", "/static/"}

func isAbsolute(requestPath string) bool {
	return strings.HasPrefix(requestPath, "http://") || strings.HasPrefix(requestPath, "https://")
}

// normalizePath prefixes relative API paths and splits off the query. Absolute URLs and
// passthrough paths keep their location.
func (c *Client) normalizePath(requestPath string, query url.Values) (string, url.Values) {
	merged := url.Values{}
	for k, values := range query {
		merged[k] = append(merged[k], values...)
	}
	requestPath = strings.TrimSpace(requestPath)
	if location, rawQuery, ok := strings.Cut(requestPath, "?"); ok {
		requestPath = location
		if values, err := url.ParseQuery(rawQuery); err == nil {
			for k, items := range values {
				merged[k] = append(merged[k], items...)
			}
		}
	}
	if isAbsolute(requestPath) {
		return requestPath, merged
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	if c.apiPrefix == "" || requestPath == c.apiPrefix || strings.HasPrefix(requestPath, c.apiPrefix+"/") {
		return requestPath, merged
	}
	for _, prefix := range c.passthrough {
		if strings.HasPrefix(requestPath, prefix) {
			return requestPath, merged
		}
	}
	return c.apiPrefix + requestPath, merged
}

func (c *Client) resolveURL(location string, query url.Values) string {
	URL := location
	if !isAbsolute(location) {
		URL = c.baseURL + location
	}
	if encoded := query.Encode(); encoded != "" {
		URL += "?" + encoded
	}
	return URL
}
