// Package cli implements the apiclient command: it loads the TOML config, builds a client and
// issues one request, printing the unwrapped response data.
//
// Example:
//
//	apiclient -u https://app.example.com -p /practice-areas
//	apiclient -p /cases -X POST -d '{"title":"Smith v. Jones"}'
//	apiclient --logout
package cli
