// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreDriver selects the presence store: postgres, sqlite or memory.
	// Empty resolves to postgres when DATABASE_URL is set, else memory.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// SQLitePath is the SQLite database file for the sqlite driver.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// RedisURL enables the Redis status cache (e.g. redis://localhost:6379/0). Empty uses the in-process cache.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisDB overrides the database number in RedisURL when non-zero.
	RedisDB int `mapstructure:"REDIS_DB"`

	// OnlineTimeout is how long after the last heartbeat a user counts as online.
	OnlineTimeout time.Duration `mapstructure:"ONLINE_TIMEOUT"`
	// DebounceWindow is the minimum interval between two store writes for one user.
	DebounceWindow time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	// StatusCacheTTL is how long an IsOnline verdict is cached.
	StatusCacheTTL time.Duration `mapstructure:"STATUS_CACHE_TTL"`
	// StatusCacheMaxEntries bounds the in-process cache (0 = unbounded).
	StatusCacheMaxEntries int `mapstructure:"STATUS_CACHE_MAX_ENTRIES"`
	// SweepBatchSize is the number of users deleted per sweep statement.
	SweepBatchSize int `mapstructure:"SWEEP_BATCH_SIZE"`
	// SweepBatchPause is the pause between sweep batches.
	SweepBatchPause time.Duration `mapstructure:"SWEEP_BATCH_PAUSE"`
	// SweepInterval is how often the server runs the expiry sweep.
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only cmd/seed signs tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. Without it every heartbeat is anonymous.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of tokens issued by cmd/seed.
	JWTAccessTTL time.Duration `mapstructure:"JWT_ACCESS_TTL"`

	// VisibilityPolicyFile is an optional Rego file overriding the default detail visibility policy.
	VisibilityPolicyFile string `mapstructure:"VISIBILITY_POLICY_FILE"`

	// Telemetry (optional). When Kafka brokers are set, presence events are published to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for presence events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTelEndpoint is the OTLP gRPC collector endpoint. Empty disables OTel export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces a plaintext connection to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_DRIVER", "")
	v.SetDefault("SQLITE_PATH", "online-status.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ONLINE_TIMEOUT", "300s")
	v.SetDefault("DEBOUNCE_WINDOW", "30s")
	v.SetDefault("STATUS_CACHE_TTL", "30s")
	v.SetDefault("STATUS_CACHE_MAX_ENTRIES", 100000)
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("SWEEP_BATCH_PAUSE", "100ms")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "online-status-auth")
	v.SetDefault("JWT_AUDIENCE", "online-status")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("VISIBILITY_POLICY_FILE", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "presence-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "presence-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "online-status")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = StorePostgres
		}
	}
	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("config: SQLITE_PATH must be set when STORE_DRIVER=sqlite")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q (want postgres, sqlite or memory)", cfg.StoreDriver)
	}

	if cfg.OnlineTimeout <= 0 {
		return nil, errors.New("config: ONLINE_TIMEOUT must be positive")
	}
	if cfg.DebounceWindow <= 0 {
		return nil, errors.New("config: DEBOUNCE_WINDOW must be positive")
	}
	if cfg.StatusCacheTTL <= 0 {
		return nil, errors.New("config: STATUS_CACHE_TTL must be positive")
	}
	if cfg.StatusCacheMaxEntries < 0 {
		return nil, errors.New("config: STATUS_CACHE_MAX_ENTRIES must not be negative")
	}
	if cfg.SweepBatchSize <= 0 {
		return nil, errors.New("config: SWEEP_BATCH_SIZE must be positive")
	}
	if cfg.SweepBatchPause < 0 {
		return nil, errors.New("config: SWEEP_BATCH_PAUSE must not be negative")
	}
	if cfg.SweepInterval <= 0 {
		return nil, errors.New("config: SWEEP_INTERVAL must be positive")
	}
	if cfg.JWTAccessTTL <= 0 {
		cfg.JWTAccessTTL = 15 * time.Minute
	}

	return &cfg, nil
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TokensEnabled reports whether a key is configured for verifying heartbeat tokens.
// A private key alone is enough: its public half verifies.
func (c *Config) TokensEnabled() bool {
	return c != nil && (strings.TrimSpace(c.JWTPublicKey) != "" || strings.TrimSpace(c.JWTPrivateKey) != "")
}
