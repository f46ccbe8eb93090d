package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.Concurrency != 30 {
		t.Fatalf("expected default concurrency 30, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.RetireThreshold != 10 {
		t.Fatalf("expected default retire threshold 10, got %d", cfg.Worker.RetireThreshold)
	}
	if cfg.Sink.Backend != "file" {
		t.Fatalf("expected default sink backend file, got %s", cfg.Sink.Backend)
	}
	if got := cfg.Timeout(); got != 15*time.Second {
		t.Fatalf("expected timeout 15s, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
worker:
  concurrency: 5
  retire_threshold: 3
http:
  timeout_seconds: 45
  user_agent: proxyfan-test
sink:
  backend: postgres
db:
  dsn: postgres://localhost/results
  table: fetched
archive:
  backend: local
  base_dir: /tmp/bodies
events:
  backend: memory
metrics:
  enabled: true
  port: 9191
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.Concurrency != 5 || cfg.Worker.RetireThreshold != 3 {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Worker)
	}
	if cfg.Sink.Backend != "postgres" || cfg.DB.Table != "fetched" {
		t.Fatalf("expected sink overrides to apply: %+v", cfg.Sink)
	}
	if cfg.Archive.Backend != "local" || cfg.Archive.BaseDir != "/tmp/bodies" {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9191 {
		t.Fatalf("expected metrics overrides to apply: %+v", cfg.Metrics)
	}
	if cfg.Logging.Development {
		t.Fatal("expected logging.development false")
	}
	if got := cfg.Timeout(); got != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %v", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"zero threshold", func(c *Config) { c.Worker.RetireThreshold = 0 }},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"unknown sink", func(c *Config) { c.Sink.Backend = "tape" }},
		{"postgres without dsn", func(c *Config) { c.Sink.Backend = "postgres"; c.DB.DSN = "" }},
		{"local archive without dir", func(c *Config) { c.Archive.Backend = "local" }},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Backend = "gcs" }},
		{"pubsub without topic", func(c *Config) { c.Events.Backend = "pubsub" }},
		{"unknown events backend", func(c *Config) { c.Events.Backend = "carrier-pigeon" }},
		{"metrics without port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
