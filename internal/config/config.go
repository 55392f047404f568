// Package config loads the engine's runtime configuration from an optional
// YAML file overlaid with environment variable overrides, following the
// teacher's AppConfig/applyEnvOverrides layering pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for the engine.
type Config struct {
	SymbolsFile string `yaml:"symbols_file"`
	JournalPath string `yaml:"journal_path"`
	MetricsAddr string `yaml:"metrics_addr"`

	ScoreMin           float64       `yaml:"score_min"`
	MaxPrice           float64       `yaml:"max_price"`
	EntryCooldown      time.Duration `yaml:"entry_cooldown"`
	MaxSignalsPerDay   int           `yaml:"max_signals_per_day"`

	TrailActivatePct float64 `yaml:"trail_activate_pct"`
	TrailGivebackPct float64 `yaml:"trail_giveback_pct"`
	HardStopLossPct  float64 `yaml:"hard_stop_loss_pct"`

	FeatureSweepFromTrades bool `yaml:"feature_sweep_from_trades"`

	QueueCapacity int `yaml:"queue_capacity"`
}

// Default returns the engine's baked-in defaults, matching the Python
// original's env-var defaults (original_source/orchestrator/engine.py).
func Default() Config {
	return Config{
		SymbolsFile:            "state/symbols.txt",
		JournalPath:            "state/sentinel.db",
		MetricsAddr:            ":9090",
		ScoreMin:               60,
		MaxPrice:               5.0,
		EntryCooldown:          300 * time.Second,
		MaxSignalsPerDay:       0, // 0 = unlimited
		TrailActivatePct:       0.6,
		TrailGivebackPct:       0.4,
		HardStopLossPct:        1.2,
		FeatureSweepFromTrades: true,
		QueueCapacity:          10000,
	}
}

// Load reads configPath (if it exists) as a YAML overlay on top of Default,
// then applies environment variable overrides, matching the teacher's
// LoadAppConfig/applyEnvOverrides split (internal/infrastructure/db/config.go).
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return cfg, fmt.Errorf("read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SYMBOLS_FILE"); v != "" {
		cfg.SymbolsFile = v
	}
	if v := os.Getenv("SENTINEL_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("SCORE_MIN"), 64); err == nil {
		cfg.ScoreMin = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("MAX_PRICE"), 64); err == nil {
		cfg.MaxPrice = v
	}
	if v, err := strconv.Atoi(os.Getenv("ENTRY_COOLDOWN_SEC")); err == nil {
		cfg.EntryCooldown = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_SIGNALS_PER_DAY")); err == nil {
		cfg.MaxSignalsPerDay = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("TRAIL_ACTIVATE_PCT"), 64); err == nil {
		cfg.TrailActivatePct = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("TRAIL_GIVEBACK_PCT"), 64); err == nil {
		cfg.TrailGivebackPct = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("HARD_STOP_LOSS_PCT"), 64); err == nil {
		cfg.HardStopLossPct = v
	}
	if v, err := strconv.ParseBool(os.Getenv("FEATURE_SWEEP_FROM_TRADES")); err == nil {
		cfg.FeatureSweepFromTrades = v
	}
	if v, err := strconv.Atoi(os.Getenv("QUEUE_CAPACITY")); err == nil {
		cfg.QueueCapacity = v
	}
}
