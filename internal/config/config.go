// Package config loads daemon settings from YAML with environment
// overrides. Every field has a working default; a missing config file is
// only an error when one was named explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vigil-sys/vigil/internal/rules"
)

// Config captures the settings required to boot the daemon.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Thresholds  rules.Thresholds  `yaml:"thresholds"`
	History     HistoryConfig     `yaml:"history"`
	Display     DisplayConfig     `yaml:"display"`
}

// ServerConfig controls the HTTP API and metrics listeners.
type ServerConfig struct {
	APIAddress      string        `yaml:"apiAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CycleConfig controls assessment scheduling. A cycle that overruns
// Deadline causes the next tick to be skipped rather than queued.
type CycleConfig struct {
	Interval time.Duration `yaml:"interval"`
	Deadline time.Duration `yaml:"deadline"`
}

// CorrelationConfig controls confidence gating in the correlation engine.
type CorrelationConfig struct {
	MinConfidence          int `yaml:"minConfidence"`
	SingleSignalConfidence int `yaml:"singleSignalConfidence"`
	MaxTracked             int `yaml:"maxTracked"`
}

// HistoryConfig controls the durable observation store.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// DisplayConfig caps how much of an assessment readers are shown.
type DisplayConfig struct {
	MaxIssues     int `yaml:"maxIssues"`
	MaxTrends     int `yaml:"maxTrends"`
	MaxRecoveries int `yaml:"maxRecoveries"`
}

// Load initialises Config from a YAML file and environment overrides.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("VIGIL_CONFIG")
		explicit = path != ""
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist) && explicit:
			return nil, fmt.Errorf("config file %s not found: %w", path, err)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			APIAddress:      ":7411",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cycle: CycleConfig{
			Interval: time.Minute,
			Deadline: 30 * time.Second,
		},
		Correlation: CorrelationConfig{
			MinConfidence:          70,
			SingleSignalConfidence: 70,
			MaxTracked:             50,
		},
		Thresholds: rules.DefaultThresholds(),
		History: HistoryConfig{
			Path:      defaultStatePath(),
			Retention: 7 * 24 * time.Hour,
		},
		Display: DisplayConfig{
			MaxIssues:     10,
			MaxTrends:     10,
			MaxRecoveries: 10,
		},
	}
}

func defaultStatePath() string {
	if dir := os.Getenv("VIGIL_STATE_DIR"); dir != "" {
		return dir + "/observations.db"
	}
	return "/var/lib/vigil/observations.db"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIGIL_API_ADDRESS"); v != "" {
		cfg.Server.APIAddress = v
	}
	if v := os.Getenv("VIGIL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("VIGIL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VIGIL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("VIGIL_CYCLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cycle.Interval = d
		}
	}
	if v := os.Getenv("VIGIL_CYCLE_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cycle.Deadline = d
		}
	}
	if v := os.Getenv("VIGIL_MIN_CONFIDENCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.MinConfidence = n
		}
	}
	if v := os.Getenv("VIGIL_SINGLE_SIGNAL_CONFIDENCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.SingleSignalConfidence = n
		}
	}
	if v := os.Getenv("VIGIL_MAX_TRACKED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.MaxTracked = n
		}
	}
	if v := os.Getenv("VIGIL_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("VIGIL_HISTORY_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.History.Retention = d
		}
	}
	if v := os.Getenv("VIGIL_MAX_ISSUES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Display.MaxIssues = n
		}
	}
}
