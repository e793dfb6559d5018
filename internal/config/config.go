package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/viant/apiclient/client/cache"
)

// Config captures everything needed to assemble a client from a file.
type Config struct {
	BaseURL    string
	APIPrefix  string
	Timeout    time.Duration
	StorageURL string
	Namespace  string
	Refresh    Refresh
	Cache      Cache
}

// Refresh selects how an expired credential is renewed.
type Refresh struct {
	URL             string
	OAuth2ConfigURL string
	EncryptionKey   string
	Redirect        string
	ProactiveLeeway time.Duration
}

// Cache configures the response cache allow-list.
type Cache struct {
	DefaultTTL  time.Duration
	Rules       []cache.Rule
	DenyMarkers []string
}

const (
	defaultConfigPath = "~/.config/apiclient/config.toml"
	defaultStorageURL = "~/.local/share/apiclient"
	defaultTimeout    = 15 * time.Second
	defaultRedirect   = "/login"
)

type rawConfig struct {
	BaseURL    string `toml:"base_url"`
	APIPrefix  string `toml:"api_prefix"`
	Timeout    string `toml:"timeout"`
	StorageURL string `toml:"storage_url"`
	Namespace  string `toml:"namespace"`
	Refresh    struct {
		URL             string `toml:"url"`
		OAuth2ConfigURL string `toml:"oauth2_config_url"`
		EncryptionKey   string `toml:"encryption_key"`
		Redirect        string `toml:"redirect"`
		ProactiveLeeway string `toml:"proactive_leeway"`
	} `toml:"refresh"`
	Cache struct {
		DefaultTTL  string   `toml:"default_ttl"`
		DenyMarkers []string `toml:"deny_markers"`
		Rules       []struct {
			Pattern string `toml:"pattern"`
			TTL     string `toml:"ttl"`
		} `toml:"rules"`
	} `toml:"cache"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Timeout:    defaultTimeout,
		StorageURL: mustExpand(defaultStorageURL),
		Refresh:    Refresh{Redirect: defaultRedirect},
		Cache: Cache{
			DefaultTTL:  cache.DefaultTTL,
			DenyMarkers: append([]string(nil), cache.DefaultDenyMarkers...),
		},
	}
}

// Load locates and parses the config file, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(raw.BaseURL)
	cfg.APIPrefix = strings.TrimSpace(raw.APIPrefix)
	cfg.Namespace = strings.TrimSpace(raw.Namespace)
	if storageURL := strings.TrimSpace(raw.StorageURL); storageURL != "" {
		cfg.StorageURL = expandStorage(storageURL)
	}
	var err error
	if cfg.Timeout, err = parseDuration("timeout", raw.Timeout, defaultTimeout); err != nil {
		return Config{}, err
	}

	cfg.Refresh.URL = strings.TrimSpace(raw.Refresh.URL)
	cfg.Refresh.OAuth2ConfigURL = strings.TrimSpace(raw.Refresh.OAuth2ConfigURL)
	cfg.Refresh.EncryptionKey = strings.TrimSpace(raw.Refresh.EncryptionKey)
	if redirect := strings.TrimSpace(raw.Refresh.Redirect); redirect != "" {
		cfg.Refresh.Redirect = redirect
	}
	if cfg.Refresh.ProactiveLeeway, err = parseDuration("refresh.proactive_leeway", raw.Refresh.ProactiveLeeway, 0); err != nil {
		return Config{}, err
	}

	if cfg.Cache.DefaultTTL, err = parseDuration("cache.default_ttl", raw.Cache.DefaultTTL, cache.DefaultTTL); err != nil {
		return Config{}, err
	}
	if raw.Cache.DenyMarkers != nil {
		cfg.Cache.DenyMarkers = raw.Cache.DenyMarkers
	}
	for i, rule := range raw.Cache.Rules {
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			return Config{}, fmt.Errorf("parse config: cache.rules[%d] has no pattern", i)
		}
		ttl, err := parseDuration(fmt.Sprintf("cache.rules[%d].ttl", i), rule.TTL, 0)
		if err != nil {
			return Config{}, err
		}
		cfg.Cache.Rules = append(cfg.Cache.Rules, cache.Rule{Pattern: pattern, TTL: ttl})
	}
	return cfg, nil
}

// Policy builds the cache policy described by the config.
func (c Config) Policy() *cache.Policy {
	ret := cache.NewPolicy(c.Cache.Rules...)
	ret.DenyMarkers = append([]string(nil), c.Cache.DenyMarkers...)
	if c.Cache.DefaultTTL > 0 {
		ret.DefaultTTL = c.Cache.DefaultTTL
	}
	return ret
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	ret, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse config: %s: %w", field, err)
	}
	if ret < 0 {
		return 0, fmt.Errorf("parse config: %s must not be negative", field)
	}
	return ret, nil
}

// expandStorage expands local paths and leaves afs URLs (mem://, file://, s3://) as is.
func expandStorage(location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	return mustExpand(location)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
