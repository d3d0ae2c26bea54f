// Package config loads pipeline configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Sheet    SheetConfig    `yaml:"sheet"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Run      RunLimits      `yaml:"run"`
	Alert    AlertConfig    `yaml:"alert"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig configures the ShipStation API client.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RequestSpacing time.Duration `yaml:"request_spacing"`
	PageSize       int           `yaml:"page_size"`
}

// SheetConfig configures the export sheet backend.
type SheetConfig struct {
	Backend   string `yaml:"backend"` // "local" | "blob"
	LocalPath string `yaml:"local_path"`
	BucketURL string `yaml:"bucket_url"` // e.g. s3://bucket?region=us-east-1
	ObjectKey string `yaml:"object_key"`
}

// ArchiveConfig configures the optional parquet batch archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BucketURL string `yaml:"bucket_url"`
	Prefix    string `yaml:"prefix"`
}

// PostgresConfig configures the reference table and log store connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the lock, property and checkpoint store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RunLimits bounds a single pipeline execution.
type RunLimits struct {
	MaxExecution         time.Duration `yaml:"max_execution"`
	BackfillMaxExecution time.Duration `yaml:"backfill_max_execution"`
	LookbackMinutes      int           `yaml:"lookback_minutes"`
	BatchSize            int           `yaml:"batch_size"`
	LockWait             time.Duration `yaml:"lock_wait"`
}

// AlertConfig configures the terminal-failure alert channel.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "https://ssapi.shipstation.com",
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RequestSpacing: 500 * time.Millisecond,
			PageSize:       500,
		},
		Sheet: SheetConfig{
			Backend:   "local",
			LocalPath: "./data/shipstation-export.csv",
		},
		Run: RunLimits{
			MaxExecution:         5 * time.Minute,
			BackfillMaxExecution: 5 * time.Minute,
			LookbackMinutes:      15,
			BatchSize:            500,
			LockWait:             5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads configuration from the given YAML file, then applies
// environment overrides. A missing file is not an error; env vars and
// defaults still apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getenvDefault("SHIPSTATION_BASE_URL", cfg.API.BaseURL)
	cfg.API.APIKey = getenvDefault("SHIPSTATION_API_KEY", cfg.API.APIKey)
	cfg.API.APISecret = getenvDefault("SHIPSTATION_API_SECRET", cfg.API.APISecret)
	cfg.Postgres.DSN = getenvDefault("REFDATA_DSN", cfg.Postgres.DSN)
	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Alert.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alert.WebhookURL)
	cfg.Sheet.Backend = getenvDefault("SHEET_BACKEND", cfg.Sheet.Backend)
	cfg.Sheet.LocalPath = getenvDefault("SHEET_LOCAL_PATH", cfg.Sheet.LocalPath)
	cfg.Sheet.BucketURL = getenvDefault("SHEET_BUCKET_URL", cfg.Sheet.BucketURL)
	cfg.Sheet.ObjectKey = getenvDefault("SHEET_OBJECT_KEY", cfg.Sheet.ObjectKey)
	cfg.Archive.BucketURL = getenvDefault("ARCHIVE_BUCKET_URL", cfg.Archive.BucketURL)

	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true"
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	if v := os.Getenv("LOOKBACK_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Run.LookbackMinutes = parsed
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Run.BatchSize = parsed
		}
	}
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("run.batch_size must be positive, got %d", c.Run.BatchSize)
	}
	if c.Run.MaxExecution <= 0 {
		return fmt.Errorf("run.max_execution must be positive")
	}
	switch c.Sheet.Backend {
	case "local":
		if c.Sheet.LocalPath == "" {
			return fmt.Errorf("sheet.local_path required for local backend")
		}
	case "blob":
		if c.Sheet.BucketURL == "" || c.Sheet.ObjectKey == "" {
			return fmt.Errorf("sheet.bucket_url and sheet.object_key required for blob backend")
		}
	default:
		return fmt.Errorf("unknown sheet backend: %s", c.Sheet.Backend)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
