package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names.
const (
	envPrefix = "BOTPULSE_"
	envConfig = "BOTPULSE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if BOTPULSE_CONFIG is set
//  3. env (prefix BOTPULSE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BOTPULSE_SHEETS_API_KEY -> sheets_api_key (flat keys matching koanf tags).
	// BOTPULSE_SHEETS_PROXIES is comma separated.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "sheets_proxies" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would make the service misbehave silently.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SheetsBaseURL == "":
		return fmt.Errorf("%w: sheets_base_url must not be empty", ErrInvalidConfig)
	case c.SheetsMaxAttempts < 1:
		return fmt.Errorf("%w: sheets_max_attempts must be at least 1", ErrInvalidConfig)
	case c.SheetsInitialBackoffMS < 0 || c.SheetsMaxBackoffMS < c.SheetsInitialBackoffMS:
		return fmt.Errorf("%w: backoff bounds must satisfy 0 <= initial <= max", ErrInvalidConfig)
	case c.FetchTimeoutMS < 1:
		return fmt.Errorf("%w: fetch_timeout_ms must be positive", ErrInvalidConfig)
	case c.MovingAverageWindow < 1:
		return fmt.Errorf("%w: moving_average_window must be at least 1", ErrInvalidConfig)
	case c.RefreshIntervalSeconds < 0:
		return fmt.Errorf("%w: refresh_interval_seconds must not be negative", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
