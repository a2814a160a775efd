// Package config loads and validates the process configuration from
// data/settings.json, created from embedded defaults when missing, with
// environment overrides for deployment-specific endpoints.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"proxypool/internal/support"
)

type Config struct {
	Redis struct {
		URL     string `json:"url"`
		PoolKey string `json:"pool_key"`
	} `json:"redis"`

	Scores struct {
		Initial float64 `json:"initial"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
	} `json:"scores"`

	Checker struct {
		TestURLs       []string `json:"test_urls"`
		Timeout        uint32   `json:"timeout"` // milliseconds
		Retries        uint32   `json:"retries"`
		Concurrency    uint32   `json:"concurrency"`
		RetryBackoff   uint32   `json:"retry_backoff"` // milliseconds
		MinSuccessRate float64  `json:"min_success_rate"`
	} `json:"checker"`

	Reputation struct {
		ValidityThreshold float64 `json:"validity_threshold"`
		FreshnessWindow   uint32  `json:"freshness_window"` // minutes
		ConfidenceLevel   float64 `json:"confidence_level"`
	} `json:"reputation"`

	Pool struct {
		FetchInterval uint32  `json:"fetch_interval"` // seconds
		CycleCooldown uint32  `json:"cycle_cooldown"` // seconds
		CleanInterval uint32  `json:"clean_interval"` // seconds
		DecayFactor   float64 `json:"decay_factor"`
	} `json:"pool"`

	Database struct {
		DSN string `json:"dsn"`
	} `json:"database"`

	Geo struct {
		DBPath string `json:"db_path"`
	} `json:"geo"`

	Sources []SourceSettings `json:"sources"`
}

type SourceSettings struct {
	Name     string   `json:"name"`
	URLs     []string `json:"urls"`
	Enabled  bool     `json:"enabled"`
	Interval uint32   `json:"interval"` // seconds
	Timeout  uint32   `json:"timeout"`  // seconds
}

const settingsFilePath = "data/settings.json"

//go:embed default_settings.json
var defaultConfig []byte

// ReadSettings loads data/settings.json, writing the embedded defaults
// first when the file does not exist, then applies environment overrides.
func ReadSettings() (Config, error) {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration")
		if err := os.MkdirAll("data", os.ModePerm); err != nil {
			return Config{}, fmt.Errorf("creating settings directory: %w", err)
		}
		if err := os.WriteFile(settingsFilePath, defaultConfig, 0o644); err != nil {
			return Config{}, fmt.Errorf("writing default settings file: %w", err)
		}
		data = defaultConfig
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling settings file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Redis.URL = support.GetEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.PoolKey = support.GetEnv("POOL_KEY", cfg.Redis.PoolKey)
	cfg.Database.DSN = support.GetEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.Geo.DBPath = support.GetEnv("GEOIP_DB", cfg.Geo.DBPath)
}

// Validate checks the configuration bounds. Any error here is fatal at
// startup; nothing else in the system is allowed to abort the process.
func (cfg Config) Validate() error {
	if cfg.Redis.PoolKey == "" {
		return fmt.Errorf("config: redis pool key must not be empty")
	}
	if cfg.Scores.Min < 0 || cfg.Scores.Max <= cfg.Scores.Min {
		return fmt.Errorf("config: score bounds [%v, %v] are invalid", cfg.Scores.Min, cfg.Scores.Max)
	}
	if cfg.Scores.Initial < cfg.Scores.Min || cfg.Scores.Initial > cfg.Scores.Max {
		return fmt.Errorf("config: initial score %v outside [%v, %v]", cfg.Scores.Initial, cfg.Scores.Min, cfg.Scores.Max)
	}
	if len(cfg.Checker.TestURLs) == 0 {
		return fmt.Errorf("config: at least one test URL is required")
	}
	if cfg.Checker.Timeout == 0 {
		return fmt.Errorf("config: checker timeout must be positive")
	}
	if cfg.Checker.Retries == 0 {
		return fmt.Errorf("config: checker retries must be at least 1")
	}
	if cfg.Checker.Concurrency == 0 {
		return fmt.Errorf("config: checker concurrency must be at least 1")
	}
	if cfg.Checker.MinSuccessRate < 0 || cfg.Checker.MinSuccessRate > 1 {
		return fmt.Errorf("config: min success rate %v outside [0, 1]", cfg.Checker.MinSuccessRate)
	}
	if cfg.Reputation.ConfidenceLevel <= 0 || cfg.Reputation.ConfidenceLevel >= 1 {
		return fmt.Errorf("config: confidence level %v outside (0, 1)", cfg.Reputation.ConfidenceLevel)
	}
	if cfg.Reputation.FreshnessWindow == 0 {
		return fmt.Errorf("config: freshness window must be positive")
	}
	if cfg.Pool.FetchInterval == 0 {
		return fmt.Errorf("config: fetch interval must be positive")
	}
	if cfg.Pool.DecayFactor <= 0 || cfg.Pool.DecayFactor > 1 {
		return fmt.Errorf("config: decay factor %v outside (0, 1]", cfg.Pool.DecayFactor)
	}
	return nil
}

func (cfg Config) CheckerTimeout() time.Duration {
	return time.Duration(cfg.Checker.Timeout) * time.Millisecond
}

func (cfg Config) CheckerRetryBackoff() time.Duration {
	return time.Duration(cfg.Checker.RetryBackoff) * time.Millisecond
}

func (cfg Config) FreshnessWindow() time.Duration {
	return time.Duration(cfg.Reputation.FreshnessWindow) * time.Minute
}

func (cfg Config) FetchInterval() time.Duration {
	return time.Duration(cfg.Pool.FetchInterval) * time.Second
}

func (cfg Config) CycleCooldown() time.Duration {
	return time.Duration(cfg.Pool.CycleCooldown) * time.Second
}

func (cfg Config) CleanInterval() time.Duration {
	return time.Duration(cfg.Pool.CleanInterval) * time.Second
}
