// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// execer is the subset of pgxpool.Pool used by PostgresWriter.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const asyncWriteTimeout = 5 * time.Second

// PostgresWriter implements Writer for the auth_audit_log table.
type PostgresWriter struct {
	db execer
}

// NewPostgresWriter creates a PostgresWriter over a pgx pool or connection.
func NewPostgresWriter(db execer) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// WriteSync inserts the event using ctx.
func (w *PostgresWriter) WriteSync(ctx context.Context, event Event) error {
	var attributesJSON []byte
	if len(event.Attributes) > 0 {
		var err error
		attributesJSON, err = json.Marshal(event.Attributes)
		if err != nil {
			return oops.Wrap(err)
		}
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO auth_audit_log (
			kind, username, user_id, reason, remote_addr, user_agent,
			request_id, attributes, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(event.Kind),
		nullable(event.Username),
		nullable(event.UserID),
		nullable(event.Reason),
		nullable(event.RemoteAddr),
		nullable(event.UserAgent),
		nullable(event.RequestID),
		attributesJSON,
		event.Timestamp,
	)
	if err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").
			With("kind", event.Kind).
			With("username", event.Username).
			Wrap(err)
	}
	return nil
}

// WriteAsync inserts the event with a bounded background context.
func (w *PostgresWriter) WriteAsync(event Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
	defer cancel()
	return w.WriteSync(ctx, event)
}

// Close is a no-op; the pool is owned by the caller.
func (w *PostgresWriter) Close() error {
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
