// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/novacriatura/novacriatura/internal/auth"
)

// MockSecretHasher is a mock for auth.SecretHasher.
type MockSecretHasher struct {
	mock.Mock
}

var _ auth.SecretHasher = (*MockSecretHasher)(nil)

// NewMockSecretHasher creates a MockSecretHasher whose expectations are
// asserted when the test finishes.
func NewMockSecretHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSecretHasher {
	m := &MockSecretHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSecretHasher) Hash(ctx context.Context, secret string) (string, error) {
	args := m.Called(ctx, secret)
	return args.String(0), args.Error(1)
}

func (m *MockSecretHasher) Verify(ctx context.Context, supplied, stored string) bool {
	args := m.Called(ctx, supplied, stored)
	return args.Bool(0)
}
