package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-api/internal/config"
	"github.com/noah-isme/checkout-api/internal/db"
	"github.com/noah-isme/checkout-api/internal/obs"
)

// Dependencies holds the shared connections built once at startup.
type Dependencies struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// Connect opens and pings Postgres and Redis. Both connections are instrumented for tracing.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "checkout-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dependencies{DB: pool, Redis: rdb}, nil
}

// Close releases the connections.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		return d.Redis.Close()
	}
	return nil
}

// RunMigrations applies the embedded schema for startup routines.
func RunMigrations(databaseURL string) error {
	return db.Up(databaseURL)
}
