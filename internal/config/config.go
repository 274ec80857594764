// Package config loads the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Quota     QuotaConfig     `yaml:"quota"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // Default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Default: 15s
}

// StorageConfig contains database paths
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"` // SQLite file, default: wacast.db
	QuotaPath    string `yaml:"quota_path"`    // Bolt file for quota counters, default: quota.db
}

// GatewayConfig contains the upstream message gateway settings
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // Per-request timeout, default: 30s
}

// DispatchConfig tunes the dispatch engine
type DispatchConfig struct {
	BatchSize          int           `yaml:"batch_size"`           // Default: 25
	RatePerSecond      int           `yaml:"rate_per_second"`      // Default: 29
	ProgressRetries    int           `yaml:"progress_retries"`     // Default: 3
	ProgressRetryDelay time.Duration `yaml:"progress_retry_delay"` // Default: 500ms
}

// SchedulerConfig tunes the scheduled-campaign poller
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // Default: 60s
}

// QuotaConfig tunes the daily quota ledger
type QuotaConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"` // Counter persistence cadence, default: 10s
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load reads and validates the configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "wacast.db"
	}
	if c.Storage.QuotaPath == "" {
		c.Storage.QuotaPath = "quota.db"
	}

	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}

	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 25
	}
	if c.Dispatch.RatePerSecond == 0 {
		c.Dispatch.RatePerSecond = 29
	}
	if c.Dispatch.ProgressRetries == 0 {
		c.Dispatch.ProgressRetries = 3
	}
	if c.Dispatch.ProgressRetryDelay == 0 {
		c.Dispatch.ProgressRetryDelay = 500 * time.Millisecond
	}

	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = time.Minute
	}

	if c.Quota.FlushInterval == 0 {
		c.Quota.FlushInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}
	if c.Dispatch.RatePerSecond <= 0 {
		return fmt.Errorf("dispatch.rate_per_second must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}
