// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package auth provides credential and account primitives for novacriatura.
//
// # Domain Types
//
// User records should be created with NewUser, which validates the username
// and profile and sets the member defaults. The privileged account is never
// created through NewUser; Bootstrapper.Ensure materializes it from a
// PrivilegedAccount descriptor.
//
// # Secrets
//
// ScryptHasher stores secrets as "derivedHex.saltHex" (scrypt N=16384, r=8,
// p=1, 64-byte key) so hashes written by earlier deployments still verify.
// Verify never returns an error; any malformed stored value is a mismatch.
//
// # Services
//
//   - Authenticator - username/secret check with distinct failure reasons
//   - Bootstrapper - privileged account creation and its login path
//   - Service - registration, login bookkeeping and profile updates
//
// Constructors validate their dependencies and return an error for nil ones.
package auth
