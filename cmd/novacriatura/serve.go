// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/novacriatura/novacriatura/internal/api"
	"github.com/novacriatura/novacriatura/internal/auth"
	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/logging"
	"github.com/novacriatura/novacriatura/internal/observability"
	"github.com/novacriatura/novacriatura/pkg/errutil"
)

const serviceName = "novacriatura"

// serveFlagKeys maps serve flags to configuration keys.
var serveFlagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "metrics.addr",
	"store":        "store",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server. The privileged account is created on
startup when bootstrap is enabled, and expired sessions are swept
periodically.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, serveFlagKeys, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("addr", defaults.Server.Addr, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("store", defaults.Store, "user store (postgres or memory)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a signal
// arrives. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting server",
		"env", cfg.Env,
		"store", cfg.Store,
		"session_backend", cfg.Session.Backend,
		"audit_sink", cfg.Audit.Sink)

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(logger, "failed to initialize", err)
		return err
	}
	defer comps.Close()

	if comps.bootstrap != nil {
		if _, err := comps.bootstrap.Ensure(ctx); err != nil {
			if errors.Is(err, auth.ErrBootstrapConflict) {
				logger.Error("privileged account not created: username belongs to an ordinary account; rename that account or set bootstrap.username",
					"username", cfg.Bootstrap.Username)
			} else {
				// Login retries the bootstrap lazily.
				errutil.LogError(logger, "failed to ensure privileged account", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, comps.ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler, err := api.NewRouter(api.Deps{
		Accounts: comps.service,
		Sessions: comps.manager,
		Audit:    comps.recorder,
		Metrics:  metrics,
		Logger:   logger,
		Options: api.Options{
			GenericFailures: cfg.Auth.GenericFailures,
			TrustProxy:      cfg.Server.TrustProxy,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		},
	})
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	listener, err := listenWithFallback(deps.Listen, cfg.Server.Addr, cfg.Server.FallbackPorts, logger)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		comps.manager.RunCleanup(ctx, cfg.Session.CleanupInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	addr := listener.Addr().String()
	cmd.Printf("Serving on %s\n", addr)
	logger.Info("server ready", "addr", addr)
	deps.Ready(addr)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case runErr = <-errChan:
		runErr = oops.Code("SERVE_FAILED").With("addr", addr).Wrap(runErr)
		errutil.LogError(logger, "server error", runErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return runErr
}

func shutdownTimeout(cfg config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// listenWithFallback binds addr, or the same host on each fallback port in
// turn while the previous one is already in use. Any other error is final.
func listenWithFallback(listen func(network, address string) (net.Listener, error), addr string, fallbackPorts []int, logger *slog.Logger) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, oops.Code("LISTEN_FAILED").With("addr", addr).Wrap(err)
	}

	candidates := []string{addr}
	for _, port := range fallbackPorts {
		candidates = append(candidates, net.JoinHostPort(host, strconv.Itoa(port)))
	}

	var lastErr error
	for _, candidate := range candidates {
		l, err := listen("tcp", candidate)
		if err == nil {
			if candidate != addr {
				logger.Warn("configured address in use, using fallback", "addr", addr, "fallback", candidate)
			}
			return l, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, oops.Code("LISTEN_FAILED").With("addr", candidate).Wrap(err)
		}
		logger.Warn("address in use", "addr", candidate)
		lastErr = err
	}
	return nil, oops.Code("LISTEN_FAILED").
		With("addr", addr).
		With("fallback_ports", fallbackPorts).
		Wrapf(lastErr, "no free port")
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when an error is received, the channel is closed or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
