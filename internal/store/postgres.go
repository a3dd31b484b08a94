// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connect defaults.
const (
	DefaultConnectAttempts = 5
	connectBaseDelay       = 250 * time.Millisecond
	connectMaxDelay        = 5 * time.Second
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and pings it, retrying with
// exponential backoff up to attempts times.
func Connect(ctx context.Context, databaseURL string, attempts int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := PingWithRetry(ctx, pool, attempts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PingWithRetry pings db until it answers or attempts are exhausted.
func PingWithRetry(ctx context.Context, db Pinger, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.NewExponential(connectBaseDelay)
	backoff = retry.WithCappedDuration(connectMaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	try := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		try++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not reachable", "attempt", try, "max_attempts", attempts, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", try).Wrap(err)
	}
	return nil
}
