// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// FailureReason explains why an authentication attempt did not succeed.
type FailureReason string

// Failure reasons.
const (
	ReasonNone            FailureReason = ""
	ReasonUnknownUser     FailureReason = "unknown_user"
	ReasonIncorrectSecret FailureReason = "incorrect_secret"
)

// Message returns the human-readable text for the reason.
func (r FailureReason) Message() string {
	switch r {
	case ReasonUnknownUser:
		return "user not found"
	case ReasonIncorrectSecret:
		return "incorrect secret"
	case ReasonNone:
		return ""
	default:
		return "authentication failed"
	}
}

// Result is the outcome of an authentication attempt. Exactly one of User
// and Reason is set.
type Result struct {
	User   *User
	Reason FailureReason
}

// OK reports whether the attempt succeeded.
func (r *Result) OK() bool {
	return r != nil && r.User != nil
}

// dummySecretHash is verified when the user does not exist so that lookups
// of unknown usernames cost about the same as wrong secrets. It is a
// well-formed representation that no secret derives to in practice.
//
//nolint:gosec // G101: not a credential.
var dummySecretHash = strings.Repeat("0", scryptKeyLen*2) + secretSeparator + strings.Repeat("0", scryptSaltLen*2)

// Authenticator resolves username/secret pairs to users.
type Authenticator struct {
	users     UserRepository
	hasher    SecretHasher
	bootstrap *Bootstrapper
}

// NewAuthenticator creates an Authenticator. bootstrap may be nil, which
// disables the privileged-account special case.
func NewAuthenticator(users UserRepository, hasher SecretHasher, bootstrap *Bootstrapper) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("secret hasher is required")
	}
	return &Authenticator{users: users, hasher: hasher, bootstrap: bootstrap}, nil
}

// Authenticate runs one login attempt. A non-nil error means an internal
// failure (for example persistence unavailable) and is never used for
// authentication failures, which are reported through Result.Reason.
func (a *Authenticator) Authenticate(ctx context.Context, username, secret string) (*Result, error) {
	if a.bootstrap != nil && a.bootstrap.Matches(username) {
		res, err := a.bootstrap.Authenticate(ctx, secret)
		switch {
		case errors.Is(err, ErrBootstrapConflict):
			// The name belongs to an ordinary account; authenticate it as one.
		case err != nil:
			return nil, oops.Code(CodeLoginFailed).
				With("operation", "authenticate privileged account").
				Wrap(err)
		default:
			return res, nil
		}
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = a.hasher.Verify(ctx, secret, dummySecretHash)
			return &Result{Reason: ReasonUnknownUser}, nil
		}
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "get user by username").
			Wrap(err)
	}

	if !a.hasher.Verify(ctx, secret, user.SecretHash) {
		return &Result{Reason: ReasonIncorrectSecret}, nil
	}
	return &Result{User: user}, nil
}

// IsReserved reports whether username collides with the privileged account
// and therefore cannot be registered. Unlike login matching it ignores case,
// since stored usernames are unique case-insensitively.
func (a *Authenticator) IsReserved(username string) bool {
	return a.bootstrap != nil && strings.EqualFold(username, a.bootstrap.Account().Username)
}
