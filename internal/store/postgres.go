// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Options tune pool creation.
type Options struct {
	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32

	// ConnectAttempts is how many pings are tried before giving up.
	ConnectAttempts uint64

	// ConnectBackoff is the initial delay between pings; it doubles up to
	// ten times its value.
	ConnectBackoff time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConnectAttempts: 5,
		ConnectBackoff:  500 * time.Millisecond,
	}
}

// Open creates a pool for dsn and waits until the database answers a ping,
// retrying with exponential backoff.
func Open(ctx context.Context, dsn string, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := retry.Do(ctx, connectBackoff(opts), func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}

	return pool, nil
}

func connectBackoff(opts Options) retry.Backoff {
	base := opts.ConnectBackoff
	if base <= 0 {
		base = DefaultOptions().ConnectBackoff
	}
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(10*base, b)
	// WithMaxRetries counts retries, not attempts.
	return retry.WithMaxRetries(attempts-1, b)
}
