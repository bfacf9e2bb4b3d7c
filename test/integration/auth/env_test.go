// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

//go:build integration

package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/novacriatura/novacriatura/internal/api"
	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
	authpostgres "github.com/novacriatura/novacriatura/internal/auth/postgres"
	"github.com/novacriatura/novacriatura/internal/session"
	sessionpostgres "github.com/novacriatura/novacriatura/internal/session/postgres"
	sessionredis "github.com/novacriatura/novacriatura/internal/session/redis"
)

type backend string

const (
	postgresSessions backend = "postgres"
	redisSessions    backend = "redis"
)

// env is one API server wired to the shared containers.
type env struct {
	server   *httptest.Server
	sessions session.Repository
	auditLog *audit.Logger
	redis    *goredis.Client
}

func newEnv(ctx context.Context, sessions backend) *env {
	Expect(db.Truncate(ctx, "sessions", "auth_audit_log", "users")).To(Succeed())

	e := &env{}
	users := authpostgres.NewUserRepository(db.Pool)
	switch sessions {
	case redisSessions:
		client, err := sessionredis.Connect(ctx, cache.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.FlushDB(ctx).Err()).To(Succeed())
		e.redis = client
		e.sessions = sessionredis.NewRepository(client, "it:")
	default:
		e.sessions = sessionpostgres.NewRepository(db.Pool)
	}

	e.auditLog = audit.NewLogger(audit.ModeAll, audit.NewPostgresWriter(db.Pool),
		filepath.Join(GinkgoT().TempDir(), "audit-wal.jsonl"))

	hasher := auth.NewScryptHasher(4)
	bootstrap, err := auth.NewBootstrapper(users, hasher, auth.DefaultPrivilegedAccount(), e.auditLog, nil)
	Expect(err).NotTo(HaveOccurred())
	authenticator, err := auth.NewAuthenticator(users, hasher, bootstrap)
	Expect(err).NotTo(HaveOccurred())
	service, err := auth.NewService(users, hasher, authenticator, e.auditLog, nil)
	Expect(err).NotTo(HaveOccurred())

	store, err := session.NewStore(e.sessions, session.StoreOptions{Secret: "integration-secret"})
	Expect(err).NotTo(HaveOccurred())
	manager, err := session.NewManager(store, e.sessions, users, e.auditLog, nil, session.ManagerOptions{})
	Expect(err).NotTo(HaveOccurred())

	handler, err := api.NewRouter(api.Deps{
		Accounts: service,
		Sessions: manager,
		Audit:    e.auditLog,
	})
	Expect(err).NotTo(HaveOccurred())

	e.server = httptest.NewServer(handler)
	return e
}

func (e *env) Close() {
	e.server.Close()
	Expect(e.auditLog.Close()).To(Succeed())
	if e.redis != nil {
		Expect(e.redis.Close()).To(Succeed())
	}
}

func newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar}
}

type reply struct {
	status  int
	body    string
	cookies []*http.Cookie
}

func (r reply) json() map[string]any {
	var out map[string]any
	Expect(json.Unmarshal([]byte(r.body), &out)).To(Succeed(), "body: %q", r.body)
	return out
}

func (e *env) call(ctx context.Context, client *http.Client, method, path, body string) reply {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return reply{status: resp.StatusCode, body: string(data), cookies: resp.Cookies()}
}

func sessionCookie(cookies []*http.Cookie) *http.Cookie {
	for _, c := range cookies {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func countRows(ctx context.Context, query string, args ...any) int {
	var n int
	Expect(db.Pool.QueryRow(ctx, query, args...).Scan(&n)).To(Succeed())
	return n
}

func mustULID(s any) ulid.ULID {
	str, ok := s.(string)
	Expect(ok).To(BeTrue())
	id, err := ulid.Parse(str)
	Expect(err).NotTo(HaveOccurred())
	return id
}
