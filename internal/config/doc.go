// Package config loads the client configuration from a TOML file.
package config
