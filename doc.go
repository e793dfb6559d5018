// Package apiclient assembles the browser-style API client from configuration.
//
// NewClient wires the pieces in the client tree: an encrypted credential vault and a persistent
// cookie jar on afs-backed storage scoped to the API origin, a single-flight refresh coordinator
// backed by the API refresh endpoint or an OAuth2 token endpoint, and the request pipeline with
// its response cache policy. Options can be populated from CLI flags, YAML/JSON or the TOML
// config file loaded by the cli package.
//
// Example:
//
//	api, err := apiclient.NewClient(ctx, &apiclient.ClientOptions{
//		BaseURL:    "https://app.example.com",
//		StorageURL: "~/.local/share/apiclient",
//		Auth:       &apiclient.ClientAuth{RefreshURL: "/api/auth/refresh", Redirect: "/login"},
//		Cache:      &apiclient.ClientCache{Rules: []cache.Rule{{Pattern: "/api/practice-areas", TTL: time.Hour}}},
//	})
//	areas, err := client.Fetch[[]PracticeArea](ctx, api, "/practice-areas")
package apiclient
