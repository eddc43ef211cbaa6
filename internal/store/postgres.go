// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package store bootstraps the PostgreSQL database: pooled connections and
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Retries is the number of additional attempts after the first failure.
	Retries uint64
	// Backoff is the initial delay of the exponential backoff between attempts.
	Backoff time.Duration
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	Logger   *slog.Logger
}

// pinger is the part of *pgxpool.Pool Connect checks before returning.
type pinger interface {
	Ping(ctx context.Context) error
	Close()
}

// poolFactory opens a pool; replaced in tests.
var poolFactory = func(ctx context.Context, cfg *pgxpool.Config) (pinger, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Connect opens a connection pool and pings it, retrying with exponential
// backoff while the database is unreachable.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	p, err := connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pool, ok := p.(*pgxpool.Pool)
	if !ok {
		p.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").Errorf("unexpected pool type %T", p)
	}
	return pool, nil
}

func connect(ctx context.Context, databaseURL string, opts ConnectOptions) (pinger, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var (
		pool    pinger
		attempt int
	)
	err = retry.Do(ctx, retry.WithMaxRetries(opts.Retries, retry.NewExponential(backoff)), func(ctx context.Context) error {
		attempt++
		p, err := poolFactory(ctx, cfg)
		if err != nil {
			logger.WarnContext(ctx, "database pool creation failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", attempt).
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}

	logger.InfoContext(ctx, "connected to database",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"attempts", attempt,
	)
	return pool, nil
}
