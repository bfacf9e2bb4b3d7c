// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package memory provides an in-process session.Repository.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/session"
)

// Repository implements session.Repository in memory.
type Repository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*session.Session
	byToken map[string]ulid.ULID
}

// Compile-time interface check.
var _ session.Repository = (*Repository)(nil)

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		byID:    make(map[ulid.ULID]*session.Session),
		byToken: make(map[string]ulid.ULID),
	}
}

// Create stores a new session.
func (r *Repository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID]; ok {
		return oops.Code("SESSION_CREATE_FAILED").With("id", s.ID.String()).Errorf("session already exists")
	}
	if _, ok := r.byToken[s.TokenHash]; ok {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already in use")
	}
	stored := *s
	r.byID[s.ID] = &stored
	r.byToken[s.TokenHash] = s.ID
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *Repository) GetByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	found := *r.byID[id]
	return &found, nil
}

// GetByID retrieves a session by ID.
func (r *Repository) GetByID(_ context.Context, id ulid.ULID) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	found := *s
	return &found, nil
}

// Touch records activity and sets a new expiry.
func (r *Repository) Touch(_ context.Context, id ulid.ULID, lastSeen, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	s.LastSeenAt = lastSeen
	s.ExpiresAt = expiresAt
	return nil
}

// Delete removes a session by ID.
func (r *Repository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	delete(r.byToken, s.TokenHash)
	delete(r.byID, id)
	return nil
}

// DeleteExpired removes sessions expired at now.
func (r *Repository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.byID {
		if s.IsExpiredAt(now) {
			delete(r.byToken, s.TokenHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
