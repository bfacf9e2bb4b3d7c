// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package config loads server configuration from defaults, a YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Storage drivers and session backends.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// Audit sinks and modes.
const (
	AuditSinkLog      = "log"
	AuditSinkPostgres = "postgres"
	AuditSinkNone     = "none"

	AuditModeSensitive = "sensitive"
	AuditModeAll       = "all"
)

// CodeInvalid marks every configuration error.
const CodeInvalid = "CONFIG_INVALID"

// Config is the complete server configuration.
type Config struct {
	Env       string          `koanf:"env" yaml:"env" json:"env,omitempty" jsonschema:"enum=development,enum=production,enum=test"`
	Store     string          `koanf:"store" yaml:"store" json:"store,omitempty" jsonschema:"enum=postgres,enum=memory,description=User storage driver"`
	Server    ServerConfig    `koanf:"server" yaml:"server" json:"server,omitempty"`
	Metrics   MetricsConfig   `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
	Database  DatabaseConfig  `koanf:"database" yaml:"database" json:"database,omitempty"`
	Redis     RedisConfig     `koanf:"redis" yaml:"redis" json:"redis,omitempty"`
	Session   SessionConfig   `koanf:"session" yaml:"session" json:"session,omitempty"`
	Auth      AuthConfig      `koanf:"auth" yaml:"auth" json:"auth,omitempty"`
	Hasher    HasherConfig    `koanf:"hasher" yaml:"hasher" json:"hasher,omitempty"`
	Bootstrap BootstrapConfig `koanf:"bootstrap" yaml:"bootstrap" json:"bootstrap,omitempty"`
	Audit     AuditConfig     `koanf:"audit" yaml:"audit" json:"audit,omitempty"`
	Log       LogConfig       `koanf:"log" yaml:"log" json:"log,omitempty"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr" yaml:"addr" json:"addr,omitempty"`
	FallbackPorts     []int         `koanf:"fallback_ports" yaml:"fallback_ports" json:"fallback_ports,omitempty" jsonschema:"description=Ports tried in order when addr is busy"`
	TrustProxy        bool          `koanf:"trust_proxy" yaml:"trust_proxy" json:"trust_proxy,omitempty"`
	AllowedOrigins    []string      `koanf:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins,omitempty" jsonschema:"description=Glob patterns of origins allowed to send state-changing requests"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout,omitempty"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout,omitempty"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=Empty disables the listener"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url" yaml:"url" json:"url,omitempty"`
	MaxConns        int32         `koanf:"max_conns" yaml:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=0"`
	ConnectAttempts int           `koanf:"connect_attempts" yaml:"connect_attempts" json:"connect_attempts,omitempty" jsonschema:"minimum=1"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" yaml:"connect_backoff" json:"connect_backoff,omitempty"`
	AutoMigrate     bool          `koanf:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate,omitempty"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	URL    string `koanf:"url" yaml:"url" json:"url,omitempty"`
	Prefix string `koanf:"prefix" yaml:"prefix" json:"prefix,omitempty"`
}

// SessionConfig configures session cookies and storage.
type SessionConfig struct {
	Secret          string        `koanf:"secret" yaml:"secret" json:"secret,omitempty"`
	PreviousSecrets []string      `koanf:"previous_secrets" yaml:"previous_secrets" json:"previous_secrets,omitempty"`
	Backend         string        `koanf:"backend" yaml:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=memory,enum=redis"`
	CookieName      string        `koanf:"cookie_name" yaml:"cookie_name" json:"cookie_name,omitempty"`
	TTL             time.Duration `koanf:"ttl" yaml:"ttl" json:"ttl,omitempty"`
	Rolling         bool          `koanf:"rolling" yaml:"rolling" json:"rolling,omitempty"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval,omitempty"`
}

// AuthConfig configures login responses.
type AuthConfig struct {
	GenericFailures bool `koanf:"generic_failures" yaml:"generic_failures" json:"generic_failures,omitempty" jsonschema:"description=Report every login failure as invalid username or secret"`
}

// HasherConfig configures the credential hasher.
type HasherConfig struct {
	MaxConcurrent int `koanf:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent,omitempty" jsonschema:"minimum=0"`
}

// BootstrapConfig configures the privileged account.
type BootstrapConfig struct {
	Enabled            bool   `koanf:"enabled" yaml:"enabled" json:"enabled,omitempty"`
	Username           string `koanf:"username" yaml:"username" json:"username,omitempty"`
	DefaultSecret      string `koanf:"default_secret" yaml:"default_secret" json:"default_secret,omitempty"`
	AllowDefaultSecret bool   `koanf:"allow_default_secret" yaml:"allow_default_secret" json:"allow_default_secret,omitempty"`
}

// AuditConfig configures security event recording.
type AuditConfig struct {
	Sink    string `koanf:"sink" yaml:"sink" json:"sink,omitempty" jsonschema:"enum=log,enum=postgres,enum=none"`
	Mode    string `koanf:"mode" yaml:"mode" json:"mode,omitempty" jsonschema:"enum=sensitive,enum=all"`
	WALPath string `koanf:"wal_path" yaml:"wal_path" json:"wal_path,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration. It has no session secret and
// therefore does not validate on its own.
func Default() Config {
	return Config{
		Env:   EnvDevelopment,
		Store: DriverPostgres,
		Server: ServerConfig{
			Addr:              ":5000",
			FallbackPorts:     []int{5001, 5002, 5003},
			TrustProxy:        true,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{Prefix: "novacriatura:session:"},
		Session: SessionConfig{
			Backend:         DriverPostgres,
			CookieName:      "novacriatura.sid",
			TTL:             24 * time.Hour,
			CleanupInterval: 15 * time.Minute,
		},
		Bootstrap: BootstrapConfig{
			Enabled:            true,
			Username:           "admin",
			DefaultSecret:      "admin123",
			AllowDefaultSecret: true,
		},
		Audit: AuditConfig{Sink: AuditSinkLog, Mode: AuditModeAll},
		Log:   LogConfig{Format: "json", Level: "info"},
	}
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// NeedsDatabase reports whether any component is backed by PostgreSQL.
func (c Config) NeedsDatabase() bool {
	return c.Store == DriverPostgres ||
		c.Session.Backend == DriverPostgres ||
		c.Audit.Sink == AuditSinkPostgres
}

// Validate reports every problem with c in one error.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	oneOf := func(key, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			fail("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
		}
	}

	oneOf("env", c.Env, EnvDevelopment, EnvProduction, EnvTest)
	oneOf("store", c.Store, DriverPostgres, DriverMemory)
	oneOf("session.backend", c.Session.Backend, DriverPostgres, DriverMemory, DriverRedis)
	oneOf("audit.sink", c.Audit.Sink, AuditSinkLog, AuditSinkPostgres, AuditSinkNone)
	oneOf("audit.mode", c.Audit.Mode, AuditModeSensitive, AuditModeAll)
	oneOf("log.format", c.Log.Format, "json", "text")
	oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error")

	if c.Server.Addr == "" {
		fail("server.addr is required")
	}
	for _, port := range c.Server.FallbackPorts {
		if port <= 0 || port > 65535 {
			fail("server.fallback_ports contains invalid port %d", port)
		}
	}
	for _, pattern := range c.Server.AllowedOrigins {
		if _, err := CompileOrigin(pattern); err != nil {
			fail("server.allowed_origins: invalid pattern %q: %v", pattern, err)
		}
	}

	if c.Session.Secret == "" {
		fail("session.secret is required (set NOVACRIATURA_SESSION__SECRET or SESSION_SECRET)")
	}
	if c.Session.TTL <= 0 {
		fail("session.ttl must be positive")
	}
	if c.Session.CookieName == "" {
		fail("session.cookie_name is required")
	}
	if c.Hasher.MaxConcurrent < 0 {
		fail("hasher.max_concurrent cannot be negative")
	}

	if c.NeedsDatabase() && c.Database.URL == "" {
		fail("database.url is required (set NOVACRIATURA_DATABASE__URL or DATABASE_URL)")
	}
	if c.Store == DriverMemory && c.Session.Backend == DriverPostgres {
		fail("session.backend postgres requires store postgres")
	}
	if c.Session.Backend == DriverRedis && c.Redis.URL == "" {
		fail("redis.url is required for session.backend redis")
	}

	if c.Bootstrap.Enabled {
		if c.Bootstrap.Username == "" {
			fail("bootstrap.username is required when bootstrap is enabled")
		}
		if c.Bootstrap.DefaultSecret == "" {
			fail("bootstrap.default_secret is required when bootstrap is enabled")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return oops.Code(CodeInvalid).Wrap(errors.Join(errs...))
}

// Redacted returns a copy of c with secrets masked, for display.
func (c Config) Redacted() Config {
	const mask = "[REDACTED]"
	if c.Session.Secret != "" {
		c.Session.Secret = mask
	}
	if len(c.Session.PreviousSecrets) > 0 {
		c.Session.PreviousSecrets = slices.Repeat([]string{mask}, len(c.Session.PreviousSecrets))
	}
	if c.Bootstrap.DefaultSecret != "" {
		c.Bootstrap.DefaultSecret = mask
	}
	c.Database.URL = redactURL(c.Database.URL)
	c.Redis.URL = redactURL(c.Redis.URL)
	return c
}

// redactURL masks the password in a connection URL.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return raw
	}
	userinfo := rest[:at]
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return raw
	}
	return scheme + "://" + user + ":xxxxx" + rest[at:]
}

// CompileOrigin compiles a server.allowed_origins pattern. '.' and ':'
// separate host labels and the port, so '*' matches within one label and
// '**' spans labels.
func CompileOrigin(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern, '.', ':')
	if err != nil {
		return nil, oops.Code("ORIGIN_PATTERN_INVALID").With("pattern", pattern).Wrap(err)
	}
	return g, nil
}
