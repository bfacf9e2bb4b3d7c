// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Profile types.
const (
	ProfileTypeMember = "member"
	ProfileTypeAdmin  = "admin"
)

// Username and profile constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxConversionAge  = 150
	MaxBaptismDateLen = 32
)

// User is an account record. SecretHash never leaves the server.
type User struct {
	ID            ulid.ULID  `json:"id"`
	Username      string     `json:"username"`
	SecretHash    string     `json:"-"`
	ConversionAge *int       `json:"conversionAge"`
	BaptismDate   string     `json:"baptismDate"`
	IsPrivileged  bool       `json:"isPrivileged"`
	ProfileType   string     `json:"profileType"`
	MutationCount int        `json:"mutationCount"`
	UseTTS        bool       `json:"useTTS"`
	LastLogin     *time.Time `json:"lastLogin"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"-"`
}

// Profile holds the user-editable attributes supplied at registration.
type Profile struct {
	ConversionAge *int   `json:"conversionAge,omitempty"`
	BaptismDate   string `json:"baptismDate,omitempty"`
	UseTTS        bool   `json:"useTTS,omitempty"`
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
type ProfileUpdate struct {
	ConversionAge *int    `json:"conversionAge,omitempty"`
	BaptismDate   *string `json:"baptismDate,omitempty"`
	UseTTS        *bool   `json:"useTTS,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.ConversionAge == nil && u.BaptismDate == nil && u.UseTTS == nil
}

// Validate checks field ranges.
func (u ProfileUpdate) Validate() error {
	if u.ConversionAge != nil {
		if err := validateConversionAge(*u.ConversionAge); err != nil {
			return err
		}
	}
	if u.BaptismDate != nil {
		if err := validateBaptismDate(*u.BaptismDate); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks field ranges.
func (p Profile) Validate() error {
	if p.ConversionAge != nil {
		if err := validateConversionAge(*p.ConversionAge); err != nil {
			return err
		}
	}
	return validateBaptismDate(p.BaptismDate)
}

func validateConversionAge(age int) error {
	if age < 0 || age > MaxConversionAge {
		return oops.Code(CodeInvalidProfile).
			With("conversion_age", age).
			Errorf("conversion age must be between 0 and %d", MaxConversionAge)
	}
	return nil
}

func validateBaptismDate(date string) error {
	if len(date) > MaxBaptismDateLen {
		return oops.Code(CodeInvalidProfile).
			Errorf("baptism date must be at most %d characters", MaxBaptismDateLen)
	}
	return nil
}

// ValidateUsername checks length and character rules. Letters from any
// script are accepted; whitespace and control characters are not.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot be empty")
	}
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if n > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == utf8.RuneError {
			return oops.Code(CodeInvalidUsername).
				Errorf("username cannot contain whitespace or control characters")
		}
	}
	return nil
}

// NewUser builds a member account from registration input. secretHash must
// already be the output of SecretHasher.Hash.
func NewUser(username, secretHash string, profile Profile) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if secretHash == "" {
		return nil, oops.Code(CodeEmptySecret).Errorf("secret hash cannot be empty")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &User{
		ID:            ulid.Make(),
		Username:      username,
		SecretHash:    secretHash,
		ConversionAge: profile.ConversionAge,
		BaptismDate:   profile.BaptismDate,
		ProfileType:   ProfileTypeMember,
		UseTTS:        profile.UseTTS,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	// Returns ErrNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create stores a new user. Returns ErrDuplicate if the ID or the
	// username already exists; the check and the insert are atomic.
	Create(ctx context.Context, user *User) error

	// UpdateProfile applies a partial update, increments the mutation
	// counter and returns the stored result.
	UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate) (*User, error)

	// TouchLastLogin records a successful login time.
	TouchLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error
}
