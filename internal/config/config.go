// Package config loads the txdata YAML configuration and applies
// environment variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Providers supported for market data retrieval.
const (
	ProviderSinotrade = "sinotrade"
	ProviderAlpaca    = "alpaca"
)

// Continuity policies for stitching per-contract series.
const (
	PolicyNative = "native" // broker-native continuous symbol
	PolicyStitch = "stitch" // manual rollover-window stitching
)

// Config is the top-level configuration for txdata.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Sinotrade Sinotrade `yaml:"sinotrade"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Mongo     Mongo     `yaml:"mongo"`
	Fetch     Fetch     `yaml:"fetch"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds output and state paths.
type Storage struct {
	OutputDir   string `yaml:"output_dir"`   // CSV and parquet output
	StateDir    string `yaml:"state_dir"`    // progress marker
	SQLitePath  string `yaml:"sqlite_path"`  // staging bar store
	ArchiveTick bool   `yaml:"archive_tick"` // also write tick chunks as parquet
}

// Sinotrade holds credentials and the bridge endpoint for the Shioaji API.
type Sinotrade struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	CertPath  string `yaml:"cert_path"`
	CertPass  string `yaml:"cert_pass"`
	BaseURL   string `yaml:"base_url"`
}

// Alpaca holds credentials for the alternative Alpaca data provider.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Mongo configures the document-store sink.
type Mongo struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	BarCollection  string `yaml:"bar_collection"`
	TickCollection string `yaml:"tick_collection"`
	BatchSize      int    `yaml:"batch_size"`
}

// Fetch controls retrieval behaviour.
type Fetch struct {
	Provider        string `yaml:"provider"`        // sinotrade | alpaca
	Symbol          string `yaml:"symbol"`          // display symbol, e.g. TXF
	ContinuousCode  string `yaml:"continuous_code"` // e.g. TXFR1
	Policy          string `yaml:"policy"`          // native | stitch
	BarMinutes      int    `yaml:"bar_minutes"`     // synthesized bar interval
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	SessionOnly     bool   `yaml:"session_only"` // drop ticks outside trading sessions
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML configuration at path, applies environment overrides,
// and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHIOAJI_API_KEY"); v != "" {
		cfg.Sinotrade.APIKey = v
	}
	if v := os.Getenv("SHIOAJI_SECRET_KEY"); v != "" {
		cfg.Sinotrade.SecretKey = v
	}
	if v := os.Getenv("SHIOAJI_CERT_PATH"); v != "" {
		cfg.Sinotrade.CertPath = v
	}
	if v := os.Getenv("SHIOAJI_CERT_PASS"); v != "" {
		cfg.Sinotrade.CertPass = v
	}
	if v := os.Getenv("SHIOAJI_BRIDGE_URL"); v != "" {
		cfg.Sinotrade.BaseURL = v
	}

	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "data"
	}
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = cfg.Storage.OutputDir
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.StateDir, "staging.db")
	}
	if cfg.Fetch.Provider == "" {
		cfg.Fetch.Provider = ProviderSinotrade
	}
	if cfg.Fetch.Symbol == "" {
		cfg.Fetch.Symbol = "TXF"
	}
	if cfg.Fetch.ContinuousCode == "" {
		cfg.Fetch.ContinuousCode = "TXFR1"
	}
	if cfg.Fetch.Policy == "" {
		cfg.Fetch.Policy = PolicyStitch
	}
	if cfg.Fetch.BarMinutes <= 0 {
		cfg.Fetch.BarMinutes = 1
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "txdata"
	}
	if cfg.Mongo.BarCollection == "" {
		cfg.Mongo.BarCollection = "TXF_1min"
	}
	if cfg.Mongo.TickCollection == "" {
		cfg.Mongo.TickCollection = "TXF_ticks"
	}
	if cfg.Mongo.BatchSize <= 0 {
		cfg.Mongo.BatchSize = 500
	}
}

// Validate checks invariants that must hold before a run begins: credentials
// present and not left at a placeholder, certificate file reachable, and a
// recognised provider/policy combination. Invalid credentials are fatal at
// startup; the run never begins.
func (c *Config) Validate() error {
	switch c.Fetch.Provider {
	case ProviderSinotrade:
		if c.Sinotrade.APIKey == "" || strings.Contains(c.Sinotrade.APIKey, "YOUR_") {
			return fmt.Errorf("sinotrade api_key is not configured")
		}
		if c.Sinotrade.SecretKey == "" || strings.Contains(c.Sinotrade.SecretKey, "YOUR_") {
			return fmt.Errorf("sinotrade secret_key is not configured")
		}
		if c.Sinotrade.CertPath == "" {
			return fmt.Errorf("sinotrade cert_path is not configured")
		}
		if _, err := os.Stat(c.Sinotrade.CertPath); err != nil {
			return fmt.Errorf("sinotrade certificate %s: %w", c.Sinotrade.CertPath, err)
		}
		if c.Sinotrade.BaseURL == "" {
			return fmt.Errorf("sinotrade base_url is not configured")
		}
	case ProviderAlpaca:
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca credentials are not configured")
		}
		if c.Fetch.Policy == PolicyStitch {
			return fmt.Errorf("alpaca provider supports only the native continuity policy")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Fetch.Provider)
	}

	switch c.Fetch.Policy {
	case PolicyNative, PolicyStitch:
	default:
		return fmt.Errorf("unknown continuity policy %q", c.Fetch.Policy)
	}

	return nil
}
