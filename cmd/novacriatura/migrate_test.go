// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/store"
	"github.com/novacriatura/novacriatura/pkg/errutil"
)

type fakeMigrator struct {
	calls  []string
	steps  int
	forced int
	status store.Status
	err    error
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.err
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return m.err
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return m.err
}

func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.forced = version
	return m.err
}

func (m *fakeMigrator) Status() (store.Status, error) {
	m.calls = append(m.calls, "status")
	return m.status, m.err
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

// useFakeMigrator installs m and a database URL for the duration of t.
func useFakeMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://app:pw@localhost:5432/app")

	var gotURL string
	previous := migratorFactory
	migratorFactory = func(url string) (migrator, error) {
		gotURL = url
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = previous })
	return &gotURL
}

func TestMigrate_Up(t *testing.T) {
	for _, args := range [][]string{{"migrate"}, {"migrate", "up"}} {
		m := &fakeMigrator{}
		gotURL := useFakeMigrator(t, m)

		out, _, err := execute(t, args...)

		require.NoError(t, err)
		assert.Equal(t, []string{"up"}, m.calls)
		assert.True(t, m.closed)
		assert.Equal(t, "postgres://app:pw@localhost:5432/app", *gotURL)
		assert.Contains(t, out, "Migrations completed successfully")
	}
}

func TestMigrate_UpFailure(t *testing.T) {
	m := &fakeMigrator{err: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("syntax error"))}
	useFakeMigrator(t, m)

	_, _, err := execute(t, "migrate", "up")

	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	assert.True(t, m.closed)
}

func TestMigrate_Down(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantSteps int
		wantOut   string
	}{
		{"one step by default", []string{"migrate", "down"}, []string{"steps"}, -1, "Rolled back 1 migration(s)"},
		{"explicit steps", []string{"migrate", "down", "--steps", "2"}, []string{"steps"}, -2, "Rolled back 2 migration(s)"},
		{"all", []string{"migrate", "down", "--all"}, []string{"down"}, 0, "All migrations rolled back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{}
			useFakeMigrator(t, m)

			out, _, err := execute(t, tt.args...)

			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Equal(t, tt.wantSteps, m.steps)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestMigrate_DownRejectsNonPositiveSteps(t *testing.T) {
	m := &fakeMigrator{}
	useFakeMigrator(t, m)

	_, _, err := execute(t, "migrate", "down", "--steps", "0")

	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	assert.Empty(t, m.calls)
}

func TestMigrate_Status(t *testing.T) {
	m := &fakeMigrator{status: store.Status{
		Version: 2,
		Applied: []uint{1, 2},
		Pending: []uint{3},
	}}
	useFakeMigrator(t, m)

	out, _, err := execute(t, "migrate", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")
	assert.Contains(t, out, "Applied: 000001_create_users, 000002_create_sessions")
	assert.Contains(t, out, "Pending: 000003_create_auth_audit_log")
	assert.NotContains(t, out, "DIRTY")
}

func TestMigrate_StatusDirty(t *testing.T) {
	m := &fakeMigrator{status: store.Status{Version: 3, Dirty: true}}
	useFakeMigrator(t, m)

	out, _, err := execute(t, "migrate", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "DIRTY")
	assert.Contains(t, out, "Pending: none")
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{}
	useFakeMigrator(t, m)

	out, _, err := execute(t, "migrate", "force", "2")

	require.NoError(t, err)
	assert.Equal(t, 2, m.forced)
	assert.Contains(t, out, "Forced schema version to 2")
}

func TestMigrate_ForceInvalidVersion(t *testing.T) {
	m := &fakeMigrator{}
	useFakeMigrator(t, m)

	_, _, err := execute(t, "migrate", "force", "abc")

	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	assert.Empty(t, m.calls)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "migrate", "status")

	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}
