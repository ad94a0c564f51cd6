// Package bootstrap builds the presence service's dependencies from config. It is shared by the
// server, sweep and seed commands so they select stores, caches and emitters the same way.
package bootstrap

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"log"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"online-status/internal/config"
	"online-status/internal/db"
	"online-status/internal/presence/cache"
	presencerepo "online-status/internal/presence/repository"
	"online-status/internal/security"
	"online-status/internal/telemetry"
	oteladapter "online-status/internal/telemetry/otel"
	"online-status/internal/telemetry/producer"
	userrepo "online-status/internal/user/repository"
)

// Store is the opened presence store and the users repository sharing its connection.
type Store struct {
	Presence presencerepo.Repository
	Users    userrepo.Repository
	// DB is the underlying connection pool; nil for the memory driver.
	DB *sql.DB
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenStore opens the store selected by cfg.StoreDriver. Postgres expects migrations to have been applied
// (cmd/migrate); SQLite tables are created with gorm AutoMigrate.
func OpenStore(cfg *config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Store{
			Presence: presencerepo.NewPostgresRepository(conn),
			Users:    userrepo.NewPostgresRepository(conn),
			DB:       conn,
		}, nil
	case config.StoreSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		conn, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		presence := presencerepo.NewGormRepository(gdb)
		users := userrepo.NewGormRepository(gdb)
		if err := errors.Join(presence.AutoMigrate(), users.AutoMigrate()); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return &Store{Presence: presence, Users: users, DB: conn}, nil
	case config.StoreMemory, "":
		log.Println("bootstrap: using in-memory presence store; records are lost on restart")
		return &Store{
			Presence: presencerepo.NewMemoryRepository(),
			Users:    userrepo.NewMemoryRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenCache returns the Redis cache when REDIS_URL is set, else a bounded in-process cache.
// The returned close function is never nil.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache(cfg.StatusCacheMaxEntries), func() error { return nil }, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisCache(client), client.Close, nil
}

// TokenProvider builds the JWT provider from the configured keys. It returns nil, nil when no key is
// configured; a nil provider rejects every token, so heartbeats are treated as anonymous.
func TokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if !cfg.TokensEnabled() {
		return nil, nil
	}
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey != "" {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
		}
	}
	if cfg.JWTPublicKey != "" {
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
		}
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL), nil
}

// Emitter combines the Kafka producer (when KAFKA_BROKERS is set) with the OTel log emitter.
// The returned close function flushes the producer and is never nil.
func Emitter(cfg *config.Config, lp *sdklog.LoggerProvider) (telemetry.EventEmitter, func() error, error) {
	emitters := []telemetry.EventEmitter{oteladapter.NewEventEmitter(lp)}
	closeFn := func() error { return nil }

	kp, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if kp != nil {
		emitters = append(emitters, kp)
		closeFn = kp.Close
		log.Printf("bootstrap: publishing presence events to kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	return telemetry.Multi(emitters...), closeFn, nil
}
