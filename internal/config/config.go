// Package config loads the quotecache YAML configuration and applies
// environment variable overrides on top.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quote cache engine.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Provider Provider `yaml:"provider"`
	Universe Universe `yaml:"universe"`
	Refresh  Refresh  `yaml:"refresh"`
	Logging  Logging  `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Provider holds the market-data vendor credential and endpoints. An empty
// APIKey disables all network fetches.
type Provider struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	StreamURL        string `yaml:"stream_url"`
	CreditsPerMinute int    `yaml:"credits_per_minute"`
}

// Universe points at the symbol registry and the externally written
// active-symbols file.
type Universe struct {
	Paths      []string `yaml:"paths"`
	ActivePath string   `yaml:"active_path"`
	ActiveMax  int      `yaml:"active_max"`
}

// Refresh controls the batch, enrichment, and streaming schedules.
type Refresh struct {
	BatchIntervalMin    int  `yaml:"batch_interval_min"`
	EnrichIntervalHours int  `yaml:"enrich_interval_hours"`
	ChunkSize           int  `yaml:"chunk_size"`
	MaxSymbolsPerRun    int  `yaml:"max_symbols_per_run"` // 0 = unlimited, debug aid
	SingleSymbolMode    bool `yaml:"single_symbol_mode"`
	SingleSymbolDelayMS int  `yaml:"single_symbol_delay_ms"`
	MaxStreamSymbols    int  `yaml:"max_stream_symbols"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/quotes.db",
		},
		Provider: Provider{
			BaseURL:          "https://api.twelvedata.com",
			StreamURL:        "wss://ws.twelvedata.com/v1/quotes/price",
			CreditsPerMinute: 0,
		},
		Universe: Universe{
			Paths: []string{
				"data/universe.json",
				"../registry/universe.json",
			},
			ActivePath: "data/active_symbols.json",
			ActiveMax:  200,
		},
		Refresh: Refresh{
			BatchIntervalMin:    10,
			EnrichIntervalHours: 24,
			ChunkSize:           8,
			SingleSymbolDelayMS: 10000,
			MaxStreamSymbols:    200,
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML configuration at path on top of the defaults, then
// applies environment variable overrides. A missing file is not an error;
// the defaults plus environment are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("QUOTECACHE_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("QUOTECACHE_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("QUOTECACHE_STREAM_URL"); v != "" {
		cfg.Provider.StreamURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BATCH_INTERVAL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Refresh.BatchIntervalMin = n
		}
	}
	if v := os.Getenv("MAX_SYMBOLS_PER_RUN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Refresh.MaxSymbolsPerRun = n
		}
	}
	if v := os.Getenv("SINGLE_SYMBOL_MODE"); v != "" {
		switch v {
		case "1", "true", "yes":
			cfg.Refresh.SingleSymbolMode = true
		case "0", "false", "no":
			cfg.Refresh.SingleSymbolMode = false
		}
	}
}
