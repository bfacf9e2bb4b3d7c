// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package storetest starts a migrated PostgreSQL container for integration
// tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/novacriatura/novacriatura/internal/store"
)

// Database is a running, fully migrated PostgreSQL instance.
type Database struct {
	Pool    *pgxpool.Pool
	ConnStr string

	container *postgres.PostgresContainer
}

// StartPostgres starts a container, applies all migrations and opens a pool.
func StartPostgres(ctx context.Context) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("novacriatura_test"),
		postgres.WithUsername("novacriatura"),
		postgres.WithPassword("novacriatura"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}

	db := &Database{container: container}
	fail := func(err error, op string) (*Database, error) {
		db.Close(ctx)
		return nil, oops.With("operation", op).Wrap(err)
	}

	db.ConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail(err, "get connection string")
	}

	migrator, err := store.NewMigrator(db.ConnStr)
	if err != nil {
		return fail(err, "create migrator")
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fail(err, "run migrations")
	}
	_ = migrator.Close()

	db.Pool, err = store.Open(ctx, db.ConnStr, store.DefaultOptions())
	if err != nil {
		return fail(err, "open pool")
	}
	return db, nil
}

// Truncate empties the given tables.
func (db *Database) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return oops.With("table", table).Wrap(err)
		}
	}
	return nil
}

// Close closes the pool and terminates the container.
func (db *Database) Close(ctx context.Context) {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.container != nil {
		_ = db.container.Terminate(ctx)
	}
}
