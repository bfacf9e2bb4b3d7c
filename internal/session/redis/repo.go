// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package redis implements session.Repository on Redis. Records expire
// through key TTLs, so DeleteExpired has nothing to sweep.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/session"
)

// DefaultPrefix namespaces every key written by Repository.
const DefaultPrefix = "novacriatura:session:"

// Repository implements session.Repository using Redis.
//
// Layout: <prefix><id> holds the JSON record; <prefix>token:<hash> holds
// the id. Both keys share the record's expiry.
type Repository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// Compile-time interface check.
var _ session.Repository = (*Repository)(nil)

// NewRepository creates a Repository. An empty prefix selects DefaultPrefix.
func NewRepository(client goredis.UniversalClient, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix, now: time.Now}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // connection already failed
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

func (r *Repository) idKey(id ulid.ULID) string {
	return r.prefix + id.String()
}

func (r *Repository) tokenKey(hash string) string {
	return r.prefix + "token:" + hash
}

func (r *Repository) ttl(expiresAt time.Time) time.Duration {
	return expiresAt.Sub(r.now())
}

// Create stores a new session.
func (r *Repository) Create(ctx context.Context, s *session.Session) error {
	ttl := r.ttl(s.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("id", s.ID.String()).
			Errorf("session already expired")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "encode session").Wrap(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.idKey(s.ID), data, ttl)
		pipe.Set(ctx, r.tokenKey(s.TokenHash), s.ID.String(), ttl)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", s.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *Repository) GetByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	rawID, err := r.client.Get(ctx, r.tokenKey(tokenHash)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").With("operation", "get token key").Wrap(err)
	}
	id, err := ulid.Parse(rawID)
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").With("id", rawID).Wrap(err)
	}
	return r.load(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (r *Repository) load(ctx context.Context, c getter, id ulid.ULID) (*session.Session, error) {
	data, err := c.Get(ctx, r.idKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("id", id.String()).Wrap(err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("id", id.String()).Wrap(err)
	}
	return &s, nil
}

// Touch records activity and sets a new expiry. The read-modify-write runs
// under WATCH so a concurrent Delete is never undone.
func (r *Repository) Touch(ctx context.Context, id ulid.ULID, lastSeen, expiresAt time.Time) error {
	key := r.idKey(id)
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		s, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		s.LastSeenAt = lastSeen
		s.ExpiresAt = expiresAt

		ttl := r.ttl(expiresAt)
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, key, r.tokenKey(s.TokenHash))
				return nil
			}
			data, err := json.Marshal(s)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, data, ttl)
			pipe.Expire(ctx, r.tokenKey(s.TokenHash), ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, session.ErrNotFound) {
		return err
	}
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	s, err := r.load(ctx, r.client, id)
	if err != nil {
		return err
	}
	n, err := r.client.Del(ctx, r.idKey(id), r.tokenKey(s.TokenHash)).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (r *Repository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
