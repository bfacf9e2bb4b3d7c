// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/audit"
)

// Default privileged account descriptor values.
const (
	DefaultPrivilegedID       = "00000000000000000000000001"
	DefaultPrivilegedUsername = "admin"
	//nolint:gosec // G101: well-known bootstrap credential, documented legacy behavior.
	DefaultPrivilegedSecret = "admin123"
)

// PrivilegedAccount describes the single well-known privileged account.
type PrivilegedAccount struct {
	ID            ulid.ULID
	Username      string
	DefaultSecret string
	ProfileType   string

	// AllowDefaultSecret keeps the legacy behavior where the default secret
	// authenticates regardless of the stored hash. When false, the stored
	// hash is verified like any other account.
	AllowDefaultSecret bool
}

// DefaultPrivilegedAccount returns the built-in descriptor.
func DefaultPrivilegedAccount() PrivilegedAccount {
	return PrivilegedAccount{
		ID:                 ulid.MustParse(DefaultPrivilegedID),
		Username:           DefaultPrivilegedUsername,
		DefaultSecret:      DefaultPrivilegedSecret,
		ProfileType:        ProfileTypeAdmin,
		AllowDefaultSecret: true,
	}
}

// Bootstrapper lazily materializes the privileged account and
// authenticates logins for its username.
type Bootstrapper struct {
	users   UserRepository
	hasher  SecretHasher
	account PrivilegedAccount
	audit   audit.Recorder
	logger  *slog.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(users UserRepository, hasher SecretHasher, account PrivilegedAccount, recorder audit.Recorder, logger *slog.Logger) (*Bootstrapper, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("secret hasher is required")
	}
	if account.ID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code(CodeBootstrapFailed).Errorf("privileged account ID cannot be zero")
	}
	if err := ValidateUsername(account.Username); err != nil {
		return nil, oops.Code(CodeBootstrapFailed).Wrap(err)
	}
	if account.DefaultSecret == "" {
		return nil, oops.Code(CodeBootstrapFailed).Errorf("privileged account default secret cannot be empty")
	}
	if account.ProfileType == "" {
		account.ProfileType = ProfileTypeAdmin
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		users:   users,
		hasher:  hasher,
		account: account,
		audit:   recorder,
		logger:  logger,
	}, nil
}

// Account returns the descriptor.
func (b *Bootstrapper) Account() PrivilegedAccount {
	return b.account
}

// Matches reports whether username is the privileged username.
func (b *Bootstrapper) Matches(username string) bool {
	return username == b.account.Username
}

// Ensure returns the privileged account, creating it if absent. Concurrent
// callers that lose the creation race re-read the winner's record. If the
// username is taken by an account with a different ID, Ensure returns an
// error wrapping ErrBootstrapConflict.
func (b *Bootstrapper) Ensure(ctx context.Context) (*User, error) {
	user, err := b.users.GetByID(ctx, b.account.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeBootstrapFailed).
			With("operation", "get privileged account").
			Wrap(err)
	}

	hash, err := b.hasher.Hash(ctx, b.account.DefaultSecret)
	if err != nil {
		return nil, oops.Code(CodeBootstrapFailed).
			With("operation", "hash default secret").
			Wrap(err)
	}

	now := time.Now().UTC()
	candidate := &User{
		ID:           b.account.ID,
		Username:     b.account.Username,
		SecretHash:   hash,
		IsPrivileged: true,
		ProfileType:  b.account.ProfileType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := b.users.Create(ctx, candidate); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeBootstrapFailed).
				With("operation", "create privileged account").
				Wrap(err)
		}
		b.logger.DebugContext(ctx, "privileged account created concurrently, re-reading",
			"user_id", b.account.ID.String())
		user, err = b.users.GetByID(ctx, b.account.ID)
		if errors.Is(err, ErrNotFound) {
			b.logger.WarnContext(ctx, "privileged username belongs to an ordinary account; bootstrap skipped",
				"username", b.account.Username,
				"user_id", b.account.ID.String())
			return nil, oops.Code(CodeBootstrapConflict).
				With("username", b.account.Username).
				Wrap(ErrBootstrapConflict)
		}
		if err != nil {
			return nil, oops.Code(CodeBootstrapFailed).
				With("operation", "re-read privileged account").
				Wrap(err)
		}
		return user, nil
	}

	b.logger.InfoContext(ctx, "privileged account created", "user_id", candidate.ID.String(), "username", candidate.Username)
	b.audit.Record(ctx, audit.Event{
		Kind:     audit.KindPrivilegedBootstrapped,
		Username: candidate.Username,
		UserID:   candidate.ID.String(),
	})
	return candidate, nil
}

// Authenticate resolves a login attempt for the privileged username.
func (b *Bootstrapper) Authenticate(ctx context.Context, secret string) (*Result, error) {
	user, err := b.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	if b.account.AllowDefaultSecret {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(b.account.DefaultSecret)) == 1 {
			return &Result{User: user}, nil
		}
		return &Result{Reason: ReasonIncorrectSecret}, nil
	}

	if b.hasher.Verify(ctx, secret, user.SecretHash) {
		return &Result{User: user}, nil
	}
	return &Result{Reason: ReasonIncorrectSecret}, nil
}
