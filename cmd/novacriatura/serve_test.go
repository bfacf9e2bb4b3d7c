// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/observability"
	"github.com/novacriatura/novacriatura/pkg/errutil"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Env = config.EnvTest
	cfg.Store = config.DriverMemory
	cfg.Session.Backend = config.DriverMemory
	cfg.Session.Secret = "serve-test-secret"
	cfg.Audit.Sink = config.AuditSinkNone
	cfg.Metrics.Addr = ""
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.FallbackPorts = nil
	cfg.Log.Level = "error"
	return cfg
}

// startServer runs serve in the background and returns the bound address
// and a function that stops it and returns its error.
func startServer(t *testing.T, cfg config.Config, deps *ServeDeps) (string, func() error) {
	t.Helper()
	if deps == nil {
		deps = &ServeDeps{}
	}
	ready := make(chan string, 1)
	deps.Ready = func(addr string) { ready <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	go func() {
		done <- runServeWithDeps(ctx, cfg, cmd, deps)
	}()

	select {
	case addr := <-ready:
		stop := func() error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-time.After(10 * time.Second):
				return errors.New("server did not stop")
			}
		}
		return addr, stop
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}
	return "", nil
}

func TestServe_MemoryBackends(t *testing.T) {
	isolate(t)
	addr, stop := startServer(t, memoryConfig(), nil)

	resp, err := http.Get("http://" + addr + "/api/user")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post("http://"+addr+"/api/login", "application/json",
		strings.NewReader(`{"username":"admin","secret":"admin123"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"isPrivileged":true`)

	require.NoError(t, stop())
}

func TestServe_ObservabilityServer(t *testing.T) {
	isolate(t)
	cfg := memoryConfig()
	cfg.Metrics.Addr = "127.0.0.1:0"

	obsAddr := make(chan string, 1)
	deps := &ServeDeps{
		ObservabilityServerFactory: func(addr string, checker observability.ReadinessChecker) ObservabilityServer {
			return &addrReporter{Server: observability.NewServer(addr, checker), addr: obsAddr}
		},
	}
	addr, stop := startServer(t, cfg, deps)
	metricsAddr := <-obsAddr

	resp, err := http.Get("http://" + addr + "/api/user")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Get("http://" + metricsAddr + "/healthz/readiness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	want := `novacriatura_http_requests_total{method="GET",route="/api/user",status="401"} 1`
	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), want)
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, stop())
}

// addrReporter publishes the bound address after Start.
type addrReporter struct {
	*observability.Server
	addr chan string
}

func (r *addrReporter) Start() (<-chan error, error) {
	errCh, err := r.Server.Start()
	if err == nil {
		r.addr <- r.Addr()
	}
	return errCh, err
}

func TestServe_ObservabilityStartFailure(t *testing.T) {
	isolate(t)
	cfg := memoryConfig()
	cfg.Metrics.Addr = "127.0.0.1:0"

	deps := &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker) ObservabilityServer {
			return failingObservability{}
		},
	}
	err := runServeWithDeps(context.Background(), cfg, &cobra.Command{}, deps)

	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

type failingObservability struct{}

func (failingObservability) Start() (<-chan error, error)    { return nil, errors.New("bind failed") }
func (failingObservability) Stop(context.Context) error      { return nil }
func (failingObservability) Addr() string                    { return "" }
func (failingObservability) Metrics() *observability.Metrics { return nil }

func TestServeCmd_InvalidConfig(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "serve", "--store", "memory")

	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}

func TestServeCmd_FlagsOverrideConfig(t *testing.T) {
	isolate(t)
	cmd := NewServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--addr", "127.0.0.1:7000", "--log-level", "debug"}))

	cfg, err := loadConfig(cmd, serveFlagKeys, false)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.Default().Metrics.Addr, cfg.Metrics.Addr)
}

func errAddrInUse() error {
	return &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
}

type fakeListener struct {
	net.Listener
	addr string
}

func TestListenWithFallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name    string
		busy    map[string]bool
		other   map[string]error
		want    string
		wantErr bool
	}{
		{
			name: "configured address free",
			want: "0.0.0.0:5000",
		},
		{
			name: "falls back to next free port",
			busy: map[string]bool{"0.0.0.0:5000": true, "0.0.0.0:5001": true},
			want: "0.0.0.0:5002",
		},
		{
			name:    "all ports busy",
			busy:    map[string]bool{"0.0.0.0:5000": true, "0.0.0.0:5001": true, "0.0.0.0:5002": true, "0.0.0.0:5003": true},
			wantErr: true,
		},
		{
			name:    "other errors are final",
			other:   map[string]error{"0.0.0.0:5000": errors.New("permission denied")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tried []string
			listen := func(_, address string) (net.Listener, error) {
				tried = append(tried, address)
				if tt.busy[address] {
					return nil, errAddrInUse()
				}
				if err := tt.other[address]; err != nil {
					return nil, err
				}
				return fakeListener{addr: address}, nil
			}

			l, err := listenWithFallback(listen, "0.0.0.0:5000", []int{5001, 5002, 5003}, logger)

			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "LISTEN_FAILED")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.(fakeListener).addr)
			assert.Equal(t, tt.want, tried[len(tried)-1])
		})
	}
}

func TestListenWithFallback_InvalidAddress(t *testing.T) {
	_, err := listenWithFallback(net.Listen, "no-port", nil, slog.Default())

	errutil.AssertErrorCode(t, err, "LISTEN_FAILED")
}
