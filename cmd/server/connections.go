package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
)

// connections holds the clients of the backing services the configuration
// asks for. Unused ones stay nil.
type connections struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	nc   *nats.Conn
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) *connections {
	c := &connections{}
	var err error

	if cfg.NeedsPostgres() {
		c.pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
	}
	if cfg.NeedsRedis() {
		c.rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
	}
	if cfg.JudgeTransport == config.JudgeNATS {
		c.nc, err = database.NewNATSConn(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
	}
	return c
}

func (c *connections) close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
