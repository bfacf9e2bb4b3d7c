// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/session"
	"github.com/novacriatura/novacriatura/internal/session/memory"
)

const testSecret = "a-session-secret-for-tests"

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]audit.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// failingRepo fails every lookup.
type failingRepo struct {
	*memory.Repository
}

func (failingRepo) GetByTokenHash(context.Context, string) (*session.Session, error) {
	return nil, errors.New("connection refused")
}

func newStore(t *testing.T, repo session.Repository, opts session.StoreOptions) *session.Store {
	t.Helper()
	if opts.Secret == "" {
		opts.Secret = testSecret
	}
	store, err := session.NewStore(repo, opts)
	require.NoError(t, err)
	return store
}

// sessionCookie returns the session cookie set on rec.
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

// withCookie returns a new request carrying c.
func withCookie(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}
