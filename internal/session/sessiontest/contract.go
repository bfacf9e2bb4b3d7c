// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package sessiontest holds a behavioural test suite shared by every
// session.Repository implementation.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/internal/session"
)

// Factory returns an empty repository and a user ID that sessions may
// reference (backends with foreign keys must seed that user).
type Factory func(t *testing.T) (session.Repository, ulid.ULID)

func newRecord(t *testing.T, userID ulid.ULID, ttl time.Duration) *session.Session {
	t.Helper()
	_, hash, err := session.GenerateToken()
	require.NoError(t, err)
	s, err := session.NewSession(userID, hash, "test-agent", "192.0.2.1", time.Now().Add(ttl))
	require.NoError(t, err)
	// Postgres stores microseconds.
	s.CreatedAt = s.CreatedAt.Truncate(time.Microsecond)
	s.LastSeenAt = s.LastSeenAt.Truncate(time.Microsecond)
	s.ExpiresAt = s.ExpiresAt.Truncate(time.Microsecond)
	return s
}

// RunRepositoryTests exercises the session.Repository contract.
func RunRepositoryTests(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create then get by token hash", func(t *testing.T) {
		repo, userID := factory(t)
		s := newRecord(t, userID, time.Hour)
		require.NoError(t, repo.Create(ctx, s))

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, userID, got.UserID)
		assert.Equal(t, "test-agent", got.UserAgent)
		assert.Equal(t, "192.0.2.1", got.RemoteAddr)
		assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("unknown token hash", func(t *testing.T) {
		repo, _ := factory(t)
		_, err := repo.GetByTokenHash(ctx, session.HashToken("missing"))
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("touch updates last seen and expiry", func(t *testing.T) {
		repo, userID := factory(t)
		s := newRecord(t, userID, time.Hour)
		require.NoError(t, repo.Create(ctx, s))

		seen := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
		expires := seen.Add(2 * time.Hour)
		require.NoError(t, repo.Touch(ctx, s.ID, seen, expires))

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.WithinDuration(t, seen, got.LastSeenAt, time.Millisecond)
		assert.WithinDuration(t, expires, got.ExpiresAt, time.Millisecond)
	})

	t.Run("touch missing session", func(t *testing.T) {
		repo, _ := factory(t)
		err := repo.Touch(ctx, ulid.Make(), time.Now(), time.Now().Add(time.Hour))
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, userID := factory(t)
		s := newRecord(t, userID, time.Hour)
		require.NoError(t, repo.Create(ctx, s))

		require.NoError(t, repo.Delete(ctx, s.ID))
		_, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.ErrorIs(t, err, session.ErrNotFound)
		require.ErrorIs(t, repo.Delete(ctx, s.ID), session.ErrNotFound)
	})

	t.Run("delete expired keeps live sessions", func(t *testing.T) {
		repo, userID := factory(t)
		live := newRecord(t, userID, time.Hour)
		require.NoError(t, repo.Create(ctx, live))

		_, err := repo.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)

		_, err = repo.GetByTokenHash(ctx, live.TokenHash)
		require.NoError(t, err)
	})
}
