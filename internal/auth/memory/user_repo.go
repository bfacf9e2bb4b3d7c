// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package memory provides an in-process auth.UserRepository for development
// and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.User
	byUsername map[string]ulid.ULID
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[ulid.ULID]*auth.User),
		byUsername: make(map[string]ulid.ULID),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(username)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[usernameKey(username)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// Create stores a new user. The uniqueness check and insert happen under
// one lock.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usernameKey(user.Username)
	if _, ok := r.byID[user.ID]; ok {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Wrap(auth.ErrDuplicate)
	}
	if _, ok := r.byUsername[key]; ok {
		return oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(auth.ErrDuplicate)
	}

	r.byID[user.ID] = clone(user)
	r.byUsername[key] = user.ID
	return nil
}

// UpdateProfile applies a partial update and increments the mutation counter.
func (r *UserRepository) UpdateProfile(_ context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}

	if update.ConversionAge != nil {
		age := *update.ConversionAge
		user.ConversionAge = &age
	}
	if update.BaptismDate != nil {
		user.BaptismDate = *update.BaptismDate
	}
	if update.UseTTS != nil {
		user.UseTTS = *update.UseTTS
	}
	user.MutationCount++
	user.UpdatedAt = time.Now().UTC()

	return clone(user), nil
}

// TouchLastLogin records a successful login time.
func (r *UserRepository) TouchLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	at = at.UTC()
	user.LastLogin = &at
	return nil
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.ConversionAge != nil {
		age := *u.ConversionAge
		c.ConversionAge = &age
	}
	if u.LastLogin != nil {
		last := *u.LastLogin
		c.LastLogin = &last
	}
	return &c
}
