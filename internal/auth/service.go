// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/audit"
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Secret   string
	Profile  Profile
}

// Service provides the account operations behind the HTTP API.
type Service struct {
	users         UserRepository
	hasher        SecretHasher
	authenticator *Authenticator
	audit         audit.Recorder
	logger        *slog.Logger
}

// NewService creates a Service. recorder and logger may be nil.
func NewService(users UserRepository, hasher SecretHasher, authenticator *Authenticator, recorder audit.Recorder, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("secret hasher is required")
	}
	if authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:         users,
		hasher:        hasher,
		authenticator: authenticator,
		audit:         recorder,
		logger:        logger,
	}, nil
}

// Register validates input, hashes the secret and stores a new member
// account. The hash is computed before anything is persisted.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if in.Secret == "" {
		return nil, ErrEmptySecret
	}
	if err := in.Profile.Validate(); err != nil {
		return nil, err
	}

	if s.authenticator.IsReserved(in.Username) {
		s.rejectRegistration(ctx, in.Username, "reserved")
		return nil, usernameTaken(in.Username)
	}

	_, err := s.users.GetByUsername(ctx, in.Username)
	switch {
	case err == nil:
		s.rejectRegistration(ctx, in.Username, "exists")
		return nil, usernameTaken(in.Username)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code(CodeRegisterFailed).
			With("operation", "get user by username").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(ctx, in.Secret)
	if err != nil {
		return nil, oops.Code(CodeRegisterFailed).
			With("operation", "hash secret").
			Wrap(err)
	}

	user, err := NewUser(in.Username, hash, in.Profile)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.rejectRegistration(ctx, in.Username, "exists")
			return nil, usernameTaken(in.Username)
		}
		return nil, oops.Code(CodeRegisterFailed).
			With("operation", "create user").
			Wrap(err)
	}

	s.audit.Record(ctx, audit.Event{
		Kind:     audit.KindRegisterSucceeded,
		Username: user.Username,
		UserID:   user.ID.String(),
	})
	return user, nil
}

// Login authenticates a username/secret pair. Authentication failures are
// reported in the Result; the error is reserved for internal failures.
func (s *Service) Login(ctx context.Context, username, secret string) (*Result, error) {
	res, err := s.authenticator.Authenticate(ctx, username, secret)
	if err != nil {
		return nil, err
	}

	if !res.OK() {
		s.audit.Record(ctx, audit.Event{
			Kind:     audit.KindLoginFailed,
			Username: username,
			Reason:   string(res.Reason),
		})
		return res, nil
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, res.User.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"user_id", res.User.ID.String(),
			"error", err)
	} else {
		res.User.LastLogin = &now
	}

	s.audit.Record(ctx, audit.Event{
		Kind:     audit.KindLoginSucceeded,
		Username: res.User.Username,
		UserID:   res.User.ID.String(),
	})
	return res, nil
}

// UpdateProfile applies a partial profile update to the given user.
func (s *Service) UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate) (*User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	if update.IsEmpty() {
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, oops.Code(CodeUpdateFailed).
				With("operation", "get user by id").
				With("user_id", id.String()).
				Wrap(err)
		}
		return user, nil
	}

	user, err := s.users.UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, oops.Code(CodeUpdateFailed).
			With("operation", "update profile").
			With("user_id", id.String()).
			Wrap(err)
	}

	s.audit.Record(ctx, audit.Event{
		Kind:     audit.KindProfileUpdated,
		Username: user.Username,
		UserID:   user.ID.String(),
		Attributes: map[string]any{
			"mutation_count": user.MutationCount,
		},
	})
	return user, nil
}

func (s *Service) rejectRegistration(ctx context.Context, username, reason string) {
	s.audit.Record(ctx, audit.Event{
		Kind:     audit.KindRegisterRejected,
		Username: username,
		Reason:   reason,
	})
}

func usernameTaken(username string) error {
	return oops.Code(CodeUsernameTaken).
		With("username", username).
		Errorf("username already exists")
}
