// Package config loads the YAML configuration shared by the binaries.
// Flags override what the file provides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"market-data-warehouse/internal/domain"
)

// Config represents the application configuration.
type Config struct {
	Service struct {
		Name        string `yaml:"name"`
		MetricsAddr string `yaml:"metrics_addr"` // empty disables the metrics server
	} `yaml:"service"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Clickhouse struct {
		DSN string `yaml:"dsn"` // empty disables the revision log
	} `yaml:"clickhouse"`

	Ingest struct {
		Mode                  string `yaml:"mode"` // scheduled, manual, backfill, adhoc
		StaleRunWindowMinutes int    `yaml:"stale_run_window_minutes"`
	} `yaml:"ingest"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if !domain.RunMode(cfg.Ingest.Mode).IsValid() {
		return nil, fmt.Errorf("unknown ingest mode %q", cfg.Ingest.Mode)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "market-data-warehouse"
	}
	if c.Service.MetricsAddr == "" {
		c.Service.MetricsAddr = ":9090"
	}
	if c.Ingest.Mode == "" {
		c.Ingest.Mode = string(domain.RunModeManual)
	}
	if c.Ingest.StaleRunWindowMinutes == 0 {
		c.Ingest.StaleRunWindowMinutes = 120
	}
}

// RunMode returns the configured ingest mode.
func (c *Config) RunMode() domain.RunMode {
	return domain.RunMode(c.Ingest.Mode)
}
