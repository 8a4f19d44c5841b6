package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Height sources.
const (
	HeightClock = "clock"
	HeightRedis = "redis"
)

const defaultJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr            string        `env:"POE_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"POE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"POE_REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"POE_LOG_LEVEL" envDefault:"info"`
	StoreBackend    string        `env:"POE_STORE_BACKEND" envDefault:"memory"`
	DatabaseURL     string        `env:"POE_DATABASE_URL"`
	SQLitePath      string        `env:"POE_SQLITE_PATH" envDefault:"poe.db"`

	Redis  RedisConfig
	Kafka  KafkaConfig
	Auth   AuthConfig
	Ledger LedgerConfig
	Outbox OutboxConfig
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string        `env:"POE_REDIS_URL"`
	PoolSize     int           `env:"POE_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"POE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"POE_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"POE_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"POE_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	KeyPrefix    string        `env:"POE_REDIS_KEY_PREFIX" envDefault:"poe"`
	// StreamMaxLen caps the registry event stream; 0 keeps every entry.
	StreamMaxLen int64 `env:"POE_REDIS_STREAM_MAXLEN" envDefault:"100000"`
}

// KafkaConfig configures event publication. Publication is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers    []string `env:"POE_KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"POE_KAFKA_TOPIC" envDefault:"poe.registry.events"`
	Partitions int32    `env:"POE_KAFKA_PARTITIONS" envDefault:"1"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSigningKey string        `env:"POE_JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"POE_JWT_ISSUER" envDefault:"poe"`
	JWTAudience   string        `env:"POE_JWT_AUDIENCE" envDefault:"poe-registry"`
	TokenTTL      time.Duration `env:"POE_JWT_TTL" envDefault:"1h"`
}

// LedgerConfig selects where operation heights come from.
type LedgerConfig struct {
	HeightSource  string        `env:"POE_HEIGHT_SOURCE" envDefault:"clock"`
	BlockInterval time.Duration `env:"POE_BLOCK_INTERVAL" envDefault:"6s"`
	Genesis       time.Time     `env:"POE_GENESIS" envDefault:"2024-01-01T00:00:00Z"`
	HeightKey     string        `env:"POE_HEIGHT_KEY" envDefault:"poe:height"`
}

// OutboxConfig configures the outbox publisher.
type OutboxConfig struct {
	PollInterval time.Duration `env:"POE_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"POE_OUTBOX_BATCH_SIZE" envDefault:"100"`
	// Retention is how long published rows are kept; 0 keeps them forever.
	Retention time.Duration `env:"POE_OUTBOX_RETENTION" envDefault:"168h"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.Ledger.HeightSource = strings.ToLower(strings.TrimSpace(cfg.Ledger.HeightSource))
	if cfg.Auth.JWTSigningKey == "" {
		// Development default; production deployments set POE_JWT_SIGNING_KEY.
		cfg.Auth.JWTSigningKey = defaultJWTSigningKey
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Server) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("POE_DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("POE_REDIS_URL is required for the redis backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("POE_SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	switch c.Ledger.HeightSource {
	case HeightClock:
		if c.Ledger.BlockInterval <= 0 {
			return fmt.Errorf("POE_BLOCK_INTERVAL must be positive")
		}
	case HeightRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("POE_REDIS_URL is required for the redis height source")
		}
	default:
		return fmt.Errorf("unknown height source %q", c.Ledger.HeightSource)
	}

	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("POE_OUTBOX_BATCH_SIZE must be positive")
	}
	if c.Outbox.Retention < 0 {
		return fmt.Errorf("POE_OUTBOX_RETENTION must not be negative")
	}
	if c.Redis.StreamMaxLen < 0 {
		return fmt.Errorf("POE_REDIS_STREAM_MAXLEN must not be negative")
	}
	return nil
}

// PublishesToKafka reports whether an event broker is configured.
func (c Server) PublishesToKafka() bool {
	return len(c.Kafka.Brokers) > 0
}

// UsesOutbox reports whether events go through a SQL outbox table.
func (c Server) UsesOutbox() bool {
	return c.StoreBackend == BackendPostgres || c.StoreBackend == BackendSQLite
}
