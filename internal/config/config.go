package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guardianstack/guardian-engine/internal/scheduler"
)

// Config captures the settings required to boot the guardian engine.
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Store      StoreConfig        `yaml:"store"`
	Thresholds map[string]float64 `yaml:"thresholds"`
	Recovery   RecoveryConfig     `yaml:"recovery"`
	Monitor    MonitorConfig      `yaml:"monitor"`
	Notify     NotifyConfig       `yaml:"notify"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// ServerConfig controls the HTTP API, gRPC probe, and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ProbeAddress    string        `yaml:"probeAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | postgres
	DSN     string `yaml:"dsn"`
}

// RecoveryConfig controls orchestration behaviour and the executor backend.
type RecoveryConfig struct {
	ActionTimeout time.Duration  `yaml:"actionTimeout"`
	MaxConcurrent int64          `yaml:"maxConcurrent"`
	CatalogPath   string         `yaml:"catalogPath"`
	Executor      ExecutorConfig `yaml:"executor"`
}

// ExecutorConfig selects and tunes the remediation backend.
type ExecutorConfig struct {
	Backend     string        `yaml:"backend"` // simulated | http
	SuccessRate float64       `yaml:"successRate"`
	Delay       time.Duration `yaml:"delay"`
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MonitorConfig controls the background sweeping loop.
type MonitorConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Interval time.Duration      `yaml:"interval"`
	Targets  []scheduler.Target `yaml:"targets"`
}

// NotifyConfig selects the transition-event sink.
type NotifyConfig struct {
	Backend    string        `yaml:"backend"` // log | webhook
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GUARDIAN_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ProbeAddress:    ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Backend: "memory"},
		Recovery: RecoveryConfig{
			ActionTimeout: 30 * time.Second,
			MaxConcurrent: 8,
			CatalogPath:   "configs/strategies/default.yaml",
			Executor: ExecutorConfig{
				Backend:     "simulated",
				SuccessRate: 0.8,
				Delay:       500 * time.Millisecond,
				Timeout:     10 * time.Second,
			},
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Interval: 60 * time.Second,
		},
		Notify:  NotifyConfig{Backend: "log", Timeout: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUARDIAN_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GUARDIAN_PROBE_ADDRESS"); v != "" {
		cfg.Server.ProbeAddress = v
	}
	if v := os.Getenv("GUARDIAN_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("GUARDIAN_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GUARDIAN_DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("GUARDIAN_CATALOG_PATH"); v != "" {
		cfg.Recovery.CatalogPath = v
	}
	if v := os.Getenv("GUARDIAN_ACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recovery.ActionTimeout = d
		}
	}
	if v := os.Getenv("GUARDIAN_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Recovery.MaxConcurrent = n
		}
	}
	if v := os.Getenv("GUARDIAN_EXECUTOR_BACKEND"); v != "" {
		cfg.Recovery.Executor.Backend = v
	}
	if v := os.Getenv("GUARDIAN_EXECUTOR_SUCCESS_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recovery.Executor.SuccessRate = rate
		}
	}
	if v := os.Getenv("GUARDIAN_EXECUTOR_BASE_URL"); v != "" {
		cfg.Recovery.Executor.BaseURL = v
	}
	if v := os.Getenv("GUARDIAN_MONITOR_ENABLED"); v != "" {
		cfg.Monitor.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("GUARDIAN_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("GUARDIAN_NOTIFY_BACKEND"); v != "" {
		cfg.Notify.Backend = v
	}
	if v := os.Getenv("GUARDIAN_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("GUARDIAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GUARDIAN_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	switch cfg.Recovery.Executor.Backend {
	case "simulated":
	case "http":
		if cfg.Recovery.Executor.BaseURL == "" {
			return fmt.Errorf("recovery.executor.baseURL is required for the http backend")
		}
	default:
		return fmt.Errorf("unknown executor backend %q", cfg.Recovery.Executor.Backend)
	}

	switch cfg.Notify.Backend {
	case "log":
	case "webhook":
		if cfg.Notify.WebhookURL == "" {
			return fmt.Errorf("notify.webhookURL is required for the webhook backend")
		}
	default:
		return fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}

	return nil
}
