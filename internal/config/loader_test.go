package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/botpulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.SheetsProxies, convey.ShouldBeEmpty)
				convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("BOTPULSE_ADDR", ":8080")
			_ = os.Setenv("BOTPULSE_SHEETS_API_KEY", "k-123")
			_ = os.Setenv("BOTPULSE_SHEETS_MAX_ATTEMPTS", "3")
			_ = os.Setenv("BOTPULSE_SHEETS_PROXIES", "https://corsproxy.io/?{url}, https://proxy.example/")
			_ = os.Setenv("BOTPULSE_MOVING_AVERAGE_WINDOW", "14")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.SheetsAPIKey, convey.ShouldEqual, "k-123")
				convey.So(cfg.SheetsMaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.MovingAverageWindow, convey.ShouldEqual, 14)
				convey.So(cfg.SheetsProxies, convey.ShouldResemble, []string{"https://corsproxy.io/?{url}", "https://proxy.example/"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
timezone: "Europe/Berlin"
catalog_path: "/etc/botpulse/catalog.yaml"
sheets_proxies:
  - "https://corsproxy.io/?{url}"
cache_ttl_seconds: 60
refresh_interval_seconds: 0
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BOTPULSE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Timezone, convey.ShouldEqual, "Europe/Berlin")
				convey.So(cfg.CatalogPath, convey.ShouldEqual, "/etc/botpulse/catalog.yaml")
				convey.So(cfg.SheetsProxies, convey.ShouldResemble, []string{"https://corsproxy.io/?{url}"})
				convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 0)
				convey.So(cfg.SheetsMaxAttempts, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\ncache_ttl_seconds: 60\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BOTPULSE_CONFIG", tmpFile)
			_ = os.Setenv("BOTPULSE_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BOTPULSE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("BOTPULSE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("BOTPULSE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When backoff bounds are inverted", func() {
			_ = os.Setenv("BOTPULSE_SHEETS_INITIAL_BACKOFF_MS", "5000")
			_ = os.Setenv("BOTPULSE_SHEETS_MAX_BACKOFF_MS", "100")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "backoff")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("BOTPULSE_SHEETS_MAX_ATTEMPTS", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the moving average window is zero", func() {
			_ = os.Setenv("BOTPULSE_MOVING_AVERAGE_WINDOW", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"BOTPULSE_CONFIG",
		"BOTPULSE_ADDR",
		"BOTPULSE_SHEETS_API_KEY",
		"BOTPULSE_SHEETS_MAX_ATTEMPTS",
		"BOTPULSE_SHEETS_PROXIES",
		"BOTPULSE_SHEETS_INITIAL_BACKOFF_MS",
		"BOTPULSE_SHEETS_MAX_BACKOFF_MS",
		"BOTPULSE_MOVING_AVERAGE_WINDOW",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "botpulse-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
