// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package store owns the auth schema and database connections.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectRetries is the number of ping retries after the first attempt.
const DefaultConnectRetries = 5

// connectBackoffBase is the first retry delay; later delays double.
var connectBackoffBase = 200 * time.Millisecond

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool and pings it until the database answers, retrying
// with exponential backoff. A database container that is still starting is
// the common case this covers.
func Connect(ctx context.Context, databaseURL string, retries uint64, logger *slog.Logger) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, retries, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, retries uint64, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(connectBackoffBase))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
