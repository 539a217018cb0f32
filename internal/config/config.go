// Package config implements TOML configuration loading, validation, and hot
// reload for dispatch-go. Resolution is a three-layer override chain:
// defaults -> config file -> environment variables, with CLI flags applied
// by the command layer on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Sync    SyncConfig    `toml:"sync"`
	Cache   CacheConfig   `toml:"cache"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig identifies the dispatch backend and its credentials. Either
// auth_token (static bearer token) or the token_url/client_id/client_secret
// triple (OAuth2 client credentials) must be set.
type ServerConfig struct {
	BaseURL      string `toml:"base_url"`
	EventsURL    string `toml:"events_url"`
	AuthToken    string `toml:"auth_token"`
	TokenURL     string `toml:"token_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SyncConfig controls the active calendar range and the watch daemon.
type SyncConfig struct {
	MonthsBack  int    `toml:"months_back"`
	MonthsAhead int    `toml:"months_ahead"`
	MetricsAddr string `toml:"metrics_addr"`
}

// CacheConfig controls the local warm-start cache.
type CacheConfig struct {
	Path      string `toml:"path"`
	WarmStart bool   `toml:"warm_start"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			MonthsBack:  1,
			MonthsAhead: 2,
			MetricsAddr: "localhost:9190",
		},
		Cache: CacheConfig{
			Path:      DefaultCachePath(),
			WarmStart: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfigPath returns the platform config file location,
// e.g. ~/.config/dispatch-go/config.toml on Linux.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "dispatch-go.toml")
	}

	return filepath.Join(dir, "dispatch-go", "config.toml")
}

// DefaultCachePath returns the platform location of the warm-start cache DB.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "dispatch-go-cache.db")
	}

	return filepath.Join(dir, "dispatch-go", "cache.db")
}

// Months returns the active calendar months (YYYY-MM) around now, spanning
// months_back before through months_ahead after the current month.
func (c *Config) Months(now time.Time) []string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []string
	for i := -c.Sync.MonthsBack; i <= c.Sync.MonthsAhead; i++ {
		months = append(months, first.AddDate(0, i, 0).Format("2006-01"))
	}

	return months
}

// HasCredentials reports whether any auth mechanism is configured.
func (c *Config) HasCredentials() bool {
	return c.Server.AuthToken != "" ||
		(c.Server.TokenURL != "" && c.Server.ClientID != "")
}

// Validate checks the configuration for inconsistencies, returning a
// descriptive error for the first problem found.
func Validate(cfg *Config) error {
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("config: server.base_url is required")
	}

	if cfg.Sync.MonthsBack < 0 || cfg.Sync.MonthsAhead < 0 {
		return fmt.Errorf("config: sync.months_back and sync.months_ahead must not be negative")
	}

	const maxRangeMonths = 24
	if cfg.Sync.MonthsBack+cfg.Sync.MonthsAhead+1 > maxRangeMonths {
		return fmt.Errorf("config: calendar range spans more than %d months", maxRangeMonths)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format %q is not one of text, json", cfg.Logging.Format)
	}

	return nil
}
