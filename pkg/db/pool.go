// Package db provides the Postgres settings store: pooling, migrations and seeding via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// PoolOpts tunes the connection pool. Zero values use defaults.
type PoolOpts struct {
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
}

func (o *PoolOpts) withDefaults() PoolOpts {
	out := PoolOpts{MaxConns: 10, MinConns: 1, HealthCheckPeriod: time.Minute}
	if o == nil {
		return out
	}
	if o.MaxConns > 0 {
		out.MaxConns = o.MaxConns
	}
	if o.MinConns > 0 && o.MinConns <= out.MaxConns {
		out.MinConns = o.MinConns
	}
	if o.HealthCheckPeriod > 0 {
		out.HealthCheckPeriod = o.HealthCheckPeriod
	}
	return out
}

// NewPool creates a pgx connection pool and verifies connectivity. Pass nil opts for defaults.
func NewPool(ctx context.Context, databaseURL string, opts *PoolOpts) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	o := opts.withDefaults()
	config.MaxConns = o.MaxConns
	config.MinConns = o.MinConns
	config.HealthCheckPeriod = o.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database %s ready (max %d connections)", logPrefix, config.ConnConfig.Database, o.MaxConns))
	return pool, nil
}
