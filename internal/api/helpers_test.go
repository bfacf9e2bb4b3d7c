// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/internal/api"
	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
	authmemory "github.com/novacriatura/novacriatura/internal/auth/memory"
	"github.com/novacriatura/novacriatura/internal/observability"
	"github.com/novacriatura/novacriatura/internal/session"
	sessionmemory "github.com/novacriatura/novacriatura/internal/session/memory"
)

// plainHasher is a fast, insecure SecretHasher.
type plainHasher struct{}

func (plainHasher) Hash(_ context.Context, secret string) (string, error) {
	if secret == "" {
		return "", auth.ErrEmptySecret
	}
	return "plain." + secret, nil
}

func (plainHasher) Verify(_ context.Context, supplied, stored string) bool {
	s, ok := strings.CutPrefix(stored, "plain.")
	return ok && s == supplied
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) find(kind audit.Kind) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return audit.Event{}, false
}

func (r *recorder) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// fixture wires the API to in-memory repositories.
type fixture struct {
	users    *authmemory.UserRepository
	sessions *sessionmemory.Repository
	recorder *recorder
	metrics  *observability.Metrics
	server   *httptest.Server
	client   *http.Client
}

func newFixture(t *testing.T, opts api.Options) *fixture {
	t.Helper()

	f := &fixture{
		users:    authmemory.NewUserRepository(),
		sessions: sessionmemory.NewRepository(),
		recorder: &recorder{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}

	hasher := plainHasher{}
	bootstrap, err := auth.NewBootstrapper(f.users, hasher, auth.DefaultPrivilegedAccount(), f.recorder, nil)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(f.users, hasher, bootstrap)
	require.NoError(t, err)
	service, err := auth.NewService(f.users, hasher, authenticator, f.recorder, nil)
	require.NoError(t, err)

	store, err := session.NewStore(f.sessions, session.StoreOptions{Secret: "api-test-secret"})
	require.NoError(t, err)
	manager, err := session.NewManager(store, f.sessions, f.users, f.recorder, nil, session.ManagerOptions{})
	require.NoError(t, err)

	handler, err := api.NewRouter(api.Deps{
		Accounts: service,
		Sessions: manager,
		Audit:    f.recorder,
		Metrics:  f.metrics,
		Options:  opts,
	})
	require.NoError(t, err)

	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	f.client = newClient(t)
	return f
}

// newClient returns a client with its own cookie jar.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

type response struct {
	status      int
	contentType string
	body        string
	header      http.Header
	cookies     []*http.Cookie
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.body), &out), "body: %q", r.body)
	return out
}

func (f *fixture) do(t *testing.T, method, path, body string) response {
	t.Helper()
	return f.doWith(t, f.client, method, path, body, nil)
}

func (f *fixture) doWith(t *testing.T, client *http.Client, method, path, body string, header http.Header) response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        string(data),
		header:      resp.Header,
		cookies:     resp.Cookies(),
	}
}

// register creates an account through the API and returns its JSON.
func (f *fixture) register(t *testing.T, username, secret string) map[string]any {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/register",
		`{"username":"`+username+`","secret":"`+secret+`"}`)
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	return resp.json(t)
}

func sessionCookieFrom(cookies []*http.Cookie) *http.Cookie {
	for _, c := range cookies {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}
