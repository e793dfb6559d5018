// Package client implements the request pipeline every application call to the API goes through.
//
// A Client normalises paths under the API prefix, answers allow-listed GET requests from a TTL
// cache, strips executable markup from JSON payloads in both directions, and dispatches through
// the credential transport, which attaches the bearer token and refreshes it once on 401.
// Failures are returned as typed errors built in the schema package.
//
// Example:
//
//	v, _ := vault.New(ctx, store.NewFileStore(profileDir))
//	coordinator := refresh.New(v, refresh.NewEndpointRefresher(baseURL+"/api/auth/refresh", nil))
//	api, _ := client.New(baseURL, v, client.WithCoordinator(coordinator))
//	areas, err := client.Fetch[[]PracticeArea](ctx, api, "/practice-areas")
//	if redirect, ok := schema.RedirectTarget(err); ok {
//		// send the user to redirect
//	}
package client
