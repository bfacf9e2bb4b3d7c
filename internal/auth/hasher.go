// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
)

// scrypt parameters. These match the values stored secrets were created
// with and must not change without a rehash path.
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 64
	scryptSaltLen = 16

	secretSeparator = "."
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code(CodeEmptySecret).Errorf("secret cannot be empty")

// SecretHasher turns secrets into storable representations and checks
// secrets against them.
type SecretHasher interface {
	// Hash returns "derivedHex.saltHex" for a fresh random salt.
	Hash(ctx context.Context, secret string) (string, error)

	// Verify reports whether supplied matches stored. It fails closed:
	// malformed input or any derivation error yields false.
	Verify(ctx context.Context, supplied, stored string) bool
}

// ScryptHasher implements SecretHasher with scrypt.
type ScryptHasher struct {
	sem *semaphore.Weighted
}

// NewScryptHasher creates a ScryptHasher that runs at most maxConcurrent
// derivations at once. Each derivation holds 16 MiB, so the bound keeps a
// burst of logins from exhausting memory. maxConcurrent <= 0 selects
// 2*GOMAXPROCS.
func NewScryptHasher(maxConcurrent int) *ScryptHasher {
	if maxConcurrent <= 0 {
		maxConcurrent = 2 * runtime.GOMAXPROCS(0)
	}
	return &ScryptHasher{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Hash derives a 64-byte key from secret and a fresh 16-byte salt.
func (h *ScryptHasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	saltHex := hex.EncodeToString(salt)

	key, err := h.derive(ctx, secret, saltHex)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	return hex.EncodeToString(key) + secretSeparator + saltHex, nil
}

// Verify re-derives the key for supplied with the stored salt and compares
// in constant time.
func (h *ScryptHasher) Verify(ctx context.Context, supplied, stored string) bool {
	derivedHex, saltHex, found := strings.Cut(stored, secretSeparator)
	if !found || derivedHex == "" || saltHex == "" {
		return false
	}

	expected, err := hex.DecodeString(derivedHex)
	if err != nil || len(expected) != scryptKeyLen {
		return false
	}
	// The salt is fed to scrypt as its hex text, but it must still be hex.
	if _, err := hex.DecodeString(saltHex); err != nil {
		return false
	}

	computed, err := h.derive(ctx, supplied, saltHex)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func (h *ScryptHasher) derive(ctx context.Context, secret, saltHex string) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap or discard
	}
	defer h.sem.Release(1)

	//nolint:wrapcheck // callers wrap or discard
	return scrypt.Key([]byte(secret), []byte(saltHex), scryptN, scryptR, scryptP, scryptKeyLen)
}

// Compile-time interface check.
var _ SecretHasher = (*ScryptHasher)(nil)
