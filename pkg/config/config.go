// Package config loads and validates the dedup tool's configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Postgres, Redis, Kafka, Dedup, Checkpoint, Audit, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Audit      AuditConfig      `yaml:"audit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// DedupConfig controls the scan: window size, paging, progress output and the
// per-collection overrides of the built-in collection table.
type DedupConfig struct {
	WindowSize    int                         `yaml:"windowSize"`
	PageSize      int                         `yaml:"pageSize"`
	ProgressEvery int                         `yaml:"progressEvery"`
	QueryTimeout  time.Duration               `yaml:"queryTimeout"`
	QueryRetries  int                         `yaml:"queryRetries"`
	Collections   map[string]CollectionConfig `yaml:"collections"`
	Breaker       BreakerConfig               `yaml:"breaker"`
}

// CollectionConfig overrides where a known collection lives and which key
// identifies its records.
type CollectionConfig struct {
	Table   string `yaml:"table"`
	KeyPath string `yaml:"keyPath"`
}

// BreakerConfig controls the circuit breaker guarding deletions.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// CheckpointConfig controls the Redis-backed resume checkpoints.
type CheckpointConfig struct {
	Enabled   bool          `yaml:"enabled"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// AuditConfig controls publishing of deletion audit events to Kafka.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Topic     string `yaml:"topic"`
	BatchSize int    `yaml:"batchSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus scrape server and the Pushgateway
// the run pushes its final metrics to.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "reading config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// Validate reports the first invalid setting as an ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Dedup.WindowSize <= 0:
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "dedup.windowSize must be positive, got %d", c.Dedup.WindowSize)
	case c.Dedup.PageSize <= 0:
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "dedup.pageSize must be positive, got %d", c.Dedup.PageSize)
	case c.Audit.Enabled && c.Audit.Topic == "":
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "audit.topic is required when audit is enabled")
	case c.Audit.Enabled && len(c.Kafka.Brokers) == 0:
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "kafka.brokers is required when audit is enabled")
	case c.Checkpoint.Enabled && c.Redis.Addr == "":
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "redis.addr is required when checkpoints are enabled")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "githubarchive",
			User:            "dedup",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		Dedup: DedupConfig{
			WindowSize:    500000,
			PageSize:      10000,
			ProgressEvery: 1000,
			QueryTimeout:  30 * time.Second,
			QueryRetries:  3,
			Breaker: BreakerConfig{
				FailureThreshold: 20,
				ResetTimeout:     10 * time.Second,
			},
		},
		Checkpoint: CheckpointConfig{
			KeyPrefix: "dedup:checkpoint:",
			TTL:       7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Topic:     "dedup.removed",
			BatchSize: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Job:  "collection-dedup",
		},
	}
}

// applyEnvOverrides reads DD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DD_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.WindowSize = n
		}
	}
	if v := os.Getenv("DD_CHECKPOINT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Checkpoint.Enabled = b
		}
	}
	if v := os.Getenv("DD_AUDIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if v := os.Getenv("DD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DD_METRICS_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}
