// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers file and env on top.
// - All functions accept context.Context as the first parameter.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Timezone is the IANA zone used to resolve "today" and to parse sheet dates.
	Timezone string `koanf:"timezone"`

	// CatalogPath points at the YAML file describing departments and sections.
	CatalogPath string `koanf:"catalog_path"`

	// SheetsAPIKey is sent as ?key= on every values API call.
	SheetsAPIKey string `koanf:"sheets_api_key"`

	// SheetsBaseURL is the values API root, without the /v4 suffix.
	SheetsBaseURL string `koanf:"sheets_base_url"`

	// SheetsProxies lists CORS proxy templates. "{url}" is replaced with the
	// escaped target URL; templates without it are used as plain prefixes.
	// Empty means direct calls.
	SheetsProxies []string `koanf:"sheets_proxies"`

	// SheetsMaxAttempts bounds tries per range, first call included.
	SheetsMaxAttempts int `koanf:"sheets_max_attempts"`

	// SheetsInitialBackoffMS and SheetsMaxBackoffMS shape the exponential backoff.
	SheetsInitialBackoffMS int `koanf:"sheets_initial_backoff_ms"`
	SheetsMaxBackoffMS     int `koanf:"sheets_max_backoff_ms"`

	// SheetsMaxRetryAfterMS caps the wait a Retry-After header can ask for.
	SheetsMaxRetryAfterMS int `koanf:"sheets_max_retry_after_ms"`

	// SheetsRequestTimeoutMS bounds a single HTTP attempt.
	SheetsRequestTimeoutMS int `koanf:"sheets_request_timeout_ms"`

	// FetchTimeoutMS bounds fetching one range, retries included. Keep it
	// below the HTTP write timeout so a slow section degrades instead of
	// dropping the response.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// CachePath is the SQLite file for fetched ranges; empty keeps the cache in memory.
	CachePath string `koanf:"cache_path"`

	// CacheTTLSeconds is how long a cached range is served without refetching.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// RefreshIntervalSeconds schedules a refresh of every department; 0 disables.
	RefreshIntervalSeconds int `koanf:"refresh_interval_seconds"`

	// RefreshWorkerCount and RefreshQueueSize size the refresh pipeline.
	RefreshWorkerCount int `koanf:"refresh_worker_count"`
	RefreshQueueSize   int `koanf:"refresh_queue_size"`

	// MovingAverageWindow is the default window for moving_average derivations.
	MovingAverageWindow int `koanf:"moving_average_window"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		Timezone:               "UTC",
		CatalogPath:            "catalog.yaml",
		SheetsBaseURL:          "https://sheets.googleapis.com",
		SheetsMaxAttempts:      5,
		SheetsInitialBackoffMS: 500,
		SheetsMaxBackoffMS:     8000,
		SheetsMaxRetryAfterMS:  30000,
		SheetsRequestTimeoutMS: 15000,
		FetchTimeoutMS:         45000,
		CacheTTLSeconds:        300,
		RefreshIntervalSeconds: 900,
		RefreshWorkerCount:     workers,
		RefreshQueueSize:       64,
		MovingAverageWindow:    7,
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RefreshInterval returns RefreshIntervalSeconds as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
