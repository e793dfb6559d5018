// Package sanitize removes executable markup from JSON payloads sent to and received from the API.
package sanitize
