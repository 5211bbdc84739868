// Package config loads the algoace YAML configuration file and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the algoace platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Backtest BacktestConfig `yaml:"backtest"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	LLM      LLM            `yaml:"llm"`
	Logging  Logging        `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BacktestConfig controls backtest job execution.
type BacktestConfig struct {
	// TimeoutSeconds bounds one simulation run. The loop checks it at bar
	// granularity; a run that exceeds it fails with a timeout message.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxConcurrent bounds the number of simultaneously running jobs. Each
	// run may hold a full historical dataset in memory.
	MaxConcurrent int `yaml:"max_concurrent"`

	// KeepCount is the per-strategy retention count for stored results.
	KeepCount int `yaml:"keep_count"`

	// Engine selects the simulator: "internal" for the built-in loop, or
	// "remote" to prefer the external engine service (with the internal
	// loop as fallback).
	Engine string `yaml:"engine"`

	// RemoteURL is the base URL of the external engine service. Required
	// when Engine is "remote".
	RemoteURL string `yaml:"remote_url"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// LLM holds credentials for the analysis collaborator.
type LLM struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_ENGINE_URL"); v != "" {
		cfg.Backtest.RemoteURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-value fields with sane defaults.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.TimeoutSeconds <= 0 {
		cfg.Backtest.TimeoutSeconds = 300
	}
	if cfg.Backtest.MaxConcurrent <= 0 {
		cfg.Backtest.MaxConcurrent = 4
	}
	if cfg.Backtest.KeepCount <= 0 {
		cfg.Backtest.KeepCount = 5
	}
	if cfg.Backtest.Engine == "" {
		cfg.Backtest.Engine = "internal"
	}
	if cfg.Alpaca.RateLimitPerMin <= 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
