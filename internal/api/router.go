// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package api exposes the account endpoints over HTTP. It is the only place
// where authentication outcomes are mapped to status codes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gobwas/glob"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/observability"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Accounts is the account service consumed by the handlers.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.User, error)
	Login(ctx context.Context, username, secret string) (*auth.Result, error)
	UpdateProfile(ctx context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.User, error)
}

// Sessions binds users to requests.
type Sessions interface {
	Create(w http.ResponseWriter, r *http.Request, user *auth.User) error
	Current(w http.ResponseWriter, r *http.Request) (*auth.User, error)
	// Peek resolves the user like Current but never touches the session or
	// writes a cookie.
	Peek(r *http.Request) (*auth.User, error)
	Destroy(w http.ResponseWriter, r *http.Request) error
}

// Options tunes request handling.
type Options struct {
	// GenericFailures reports every login failure with one message.
	GenericFailures bool
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// AllowedOrigins are glob patterns of cross-origin callers allowed to
	// send state-changing requests. Same-origin requests always pass.
	AllowedOrigins []string
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Deps holds the router's collaborators.
type Deps struct {
	Accounts Accounts
	Sessions Sessions
	Audit    audit.Recorder
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	Options  Options
}

// Handler serves the account API.
type Handler struct {
	accounts Accounts
	sessions Sessions
	audit    audit.Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger
	opts     Options
	origins  []glob.Glob
}

// NewRouter builds the API router with its middleware chain.
func NewRouter(deps Deps) (http.Handler, error) {
	h, err := newHandler(deps)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.observe, h.checkOrigin, h.limitBody)
	api.HandleFunc("/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/user", h.currentUser).Methods(http.MethodGet)
	api.HandleFunc("/user", h.updateUser).Methods(http.MethodPatch)

	var handler http.Handler = r
	handler = h.accessLog(handler)
	handler = h.requestInfo(handler)
	handler = h.recoverPanics(handler)
	return handler, nil
}

func newHandler(deps Deps) (*Handler, error) {
	if deps.Accounts == nil {
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("accounts service is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("session manager is required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Options.MaxBodyBytes <= 0 {
		deps.Options.MaxBodyBytes = DefaultMaxBodyBytes
	}

	origins := make([]glob.Glob, 0, len(deps.Options.AllowedOrigins))
	for _, pattern := range deps.Options.AllowedOrigins {
		g, err := config.CompileOrigin(pattern)
		if err != nil {
			return nil, oops.Code("API_CONFIG_INVALID").With("pattern", pattern).Wrap(err)
		}
		origins = append(origins, g)
	}

	return &Handler{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "api"),
		opts:     deps.Options,
		origins:  origins,
	}, nil
}
