// Package transport implements the credential layer of the API client as an http.RoundTripper.
//
// Every attempt reads the credential vault: a stored token is sent as a Bearer header, and
// without one, state-changing requests carry the anti-forgery cookie value in X-XSRF-TOKEN.
// When the server answers 401 the RoundTripper asks the refresh coordinator for a new token and
// replays the request exactly once. PersistentJar keeps the session cookies in a store so they
// survive restarts.
package transport
