package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: https://gateway.example.com/api
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Dispatch.BatchSize != 25 || cfg.Dispatch.RatePerSecond != 29 {
		t.Errorf("dispatch defaults = %d/%d", cfg.Dispatch.BatchSize, cfg.Dispatch.RatePerSecond)
	}
	if cfg.Scheduler.PollInterval != time.Minute {
		t.Errorf("poll interval = %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Storage.DatabasePath != "wacast.db" || cfg.Storage.QuotaPath != "quota.db" {
		t.Errorf("storage defaults = %q/%q", cfg.Storage.DatabasePath, cfg.Storage.QuotaPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9000"
gateway:
  base_url: https://gateway.example.com/api
  timeout: 10s
dispatch:
  batch_size: 10
  rate_per_second: 5
scheduler:
  poll_interval: 30s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("gateway timeout = %v", cfg.Gateway.Timeout)
	}
	if cfg.Dispatch.BatchSize != 10 || cfg.Dispatch.RatePerSecond != 5 {
		t.Errorf("dispatch = %d/%d", cfg.Dispatch.BatchSize, cfg.Dispatch.RatePerSecond)
	}
	if cfg.Scheduler.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing gateway url", "server:\n  listen_addr: \":8080\"\n"},
		{"bad level", "gateway:\n  base_url: https://g\nlogging:\n  level: loud\n"},
		{"bad format", "gateway:\n  base_url: https://g\nlogging:\n  format: xml\n"},
		{"negative batch size", "gateway:\n  base_url: https://g\ndispatch:\n  batch_size: -1\n"},
		{"negative rate", "gateway:\n  base_url: https://g\ndispatch:\n  rate_per_second: -5\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error")
	}
}
