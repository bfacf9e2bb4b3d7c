// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
	authmemory "github.com/novacriatura/novacriatura/internal/auth/memory"
	authpostgres "github.com/novacriatura/novacriatura/internal/auth/postgres"
	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/observability"
	"github.com/novacriatura/novacriatura/internal/session"
	sessionmemory "github.com/novacriatura/novacriatura/internal/session/memory"
	sessionpostgres "github.com/novacriatura/novacriatura/internal/session/postgres"
	sessionredis "github.com/novacriatura/novacriatura/internal/session/redis"
	"github.com/novacriatura/novacriatura/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker) ObservabilityServer

	// Ready is called with the bound API address once the server accepts
	// connections.
	Ready func(addr string)
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, checker)
		}
	}
	if out.Ready == nil {
		out.Ready = func(string) {}
	}
	return &out
}

// components holds the assembled services shared by serve and bootstrap.
type components struct {
	cfg    config.Config
	logger *slog.Logger

	pool  *pgxpool.Pool
	redis *goredis.Client

	users    auth.UserRepository
	sessions session.Repository

	auditLog *audit.Logger
	recorder audit.Recorder

	hasher        *auth.ScryptHasher
	bootstrap     *auth.Bootstrapper
	authenticator *auth.Authenticator
	service       *auth.Service

	store   *session.Store
	manager *session.Manager
}

// buildComponents connects to the configured backends and wires the
// services. On error everything opened so far is closed.
func buildComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (c *components, err error) {
	c = &components{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if cfg.NeedsDatabase() {
		c.pool, err = store.Open(ctx, cfg.Database.URL, store.Options{
			MaxConns:        cfg.Database.MaxConns,
			ConnectAttempts: uint64(max(cfg.Database.ConnectAttempts, 1)), //nolint:gosec // clamped to >= 1
			ConnectBackoff:  cfg.Database.ConnectBackoff,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database")

		if cfg.Database.AutoMigrate {
			if err = autoMigrate(cfg.Database.URL, logger); err != nil {
				return nil, err
			}
		}
	}

	switch cfg.Store {
	case config.DriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		c.users = authmemory.NewUserRepository()
	default:
		c.users = authpostgres.NewUserRepository(c.pool)
	}

	switch cfg.Session.Backend {
	case config.DriverMemory:
		c.sessions = sessionmemory.NewRepository()
	case config.DriverRedis:
		c.redis, err = sessionredis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		c.sessions = sessionredis.NewRepository(c.redis, cfg.Redis.Prefix)
	default:
		c.sessions = sessionpostgres.NewRepository(c.pool)
	}

	if err = c.buildAudit(ctx); err != nil {
		return nil, err
	}

	c.hasher = auth.NewScryptHasher(cfg.Hasher.MaxConcurrent)

	if cfg.Bootstrap.Enabled {
		account := auth.DefaultPrivilegedAccount()
		account.Username = cfg.Bootstrap.Username
		account.DefaultSecret = cfg.Bootstrap.DefaultSecret
		account.AllowDefaultSecret = cfg.Bootstrap.AllowDefaultSecret
		c.bootstrap, err = auth.NewBootstrapper(c.users, c.hasher, account, c.recorder, logger)
		if err != nil {
			return nil, err
		}
	}

	c.authenticator, err = auth.NewAuthenticator(c.users, c.hasher, c.bootstrap)
	if err != nil {
		return nil, err
	}
	c.service, err = auth.NewService(c.users, c.hasher, c.authenticator, c.recorder, logger)
	if err != nil {
		return nil, err
	}

	c.store, err = session.NewStore(c.sessions, session.StoreOptions{
		Secret:          cfg.Session.Secret,
		PreviousSecrets: cfg.Session.PreviousSecrets,
		TTL:             cfg.Session.TTL,
		Secure:          cfg.IsProduction(),
		SameSite:        http.SameSiteLaxMode,
	})
	if err != nil {
		return nil, err
	}
	c.manager, err = session.NewManager(c.store, c.sessions, c.users, c.recorder, logger, session.ManagerOptions{
		CookieName: cfg.Session.CookieName,
		Rolling:    cfg.Session.Rolling,
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *components) buildAudit(ctx context.Context) error {
	var writer audit.Writer
	switch c.cfg.Audit.Sink {
	case config.AuditSinkNone:
		c.recorder = audit.Discard
		return nil
	case config.AuditSinkPostgres:
		writer = audit.NewPostgresWriter(c.pool)
	default:
		writer = audit.NewSlogWriter(c.logger)
	}

	c.auditLog = audit.NewLogger(audit.Mode(c.cfg.Audit.Mode), writer, c.cfg.Audit.WALPath)
	c.recorder = c.auditLog
	if err := c.auditLog.ReplayWAL(ctx); err != nil {
		c.logger.Warn("failed to replay audit WAL",
			"path", c.auditLog.WALPath(),
			"error", err)
	}
	return nil
}

// ready reports whether the backing stores answer.
func (c *components) ready(ctx context.Context) error {
	if c.pool != nil {
		if err := c.pool.Ping(ctx); err != nil {
			return oops.Code("DB_UNAVAILABLE").Wrap(err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_UNAVAILABLE").Wrap(err)
		}
	}
	return nil
}

// Close releases every backend handle. It is safe on a partially built
// value.
func (c *components) Close() {
	if c.auditLog != nil {
		if err := c.auditLog.Close(); err != nil {
			c.logger.Warn("error closing audit logger", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("error closing redis client", "error", err)
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

func autoMigrate(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}
