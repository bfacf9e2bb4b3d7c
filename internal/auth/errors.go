// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by UserRepository.Create when the ID or the
// username is already taken. Implementations must detect this atomically
// (unique constraint or lock), never by a separate read.
var ErrDuplicate = errors.New("duplicate")

// ErrBootstrapConflict is returned by Bootstrapper.Ensure when the privileged
// username already belongs to an ordinary account.
var ErrBootstrapConflict = errors.New("privileged username held by another account")

// Error codes surfaced to the API layer.
const (
	CodeUsernameTaken   = "AUTH_USERNAME_TAKEN"
	CodeInvalidUsername = "AUTH_INVALID_USERNAME"
	CodeEmptySecret     = "AUTH_EMPTY_SECRET"
	CodeInvalidProfile  = "AUTH_INVALID_PROFILE"
	CodeLoginFailed     = "AUTH_LOGIN_FAILED"
	CodeRegisterFailed  = "AUTH_REGISTER_FAILED"
	CodeUpdateFailed    = "AUTH_UPDATE_FAILED"
	CodeBootstrapFailed = "AUTH_BOOTSTRAP_FAILED"

	CodeBootstrapConflict = "AUTH_BOOTSTRAP_CONFLICT"
)

// IsValidationCode reports whether code denotes a client-side validation
// failure rather than an internal error.
func IsValidationCode(code string) bool {
	switch code {
	case CodeUsernameTaken, CodeInvalidUsername, CodeEmptySecret, CodeInvalidProfile:
		return true
	default:
		return false
	}
}
