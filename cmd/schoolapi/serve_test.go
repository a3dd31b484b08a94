// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/schoolapi/internal/auth"
	"github.com/holomush/schoolapi/internal/auth/memory"
	"github.com/holomush/schoolapi/internal/auth/postgres"
	"github.com/holomush/schoolapi/internal/config"
	"github.com/holomush/schoolapi/internal/httpapi"
	"github.com/holomush/schoolapi/internal/observability"
	"github.com/holomush/schoolapi/pkg/errutil"
)

type fakeDatabase struct {
	postgres.DB
	pingErr error
	closed  atomic.Bool
}

func (d *fakeDatabase) Ping(context.Context) error { return d.pingErr }

func (d *fakeDatabase) Close() { d.closed.Store(true) }

type fakeObservabilityServer struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
	ready    observability.ReadinessChecker
}

func (s *fakeObservabilityServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started.Store(true)
	return make(chan error), nil
}

func (s *fakeObservabilityServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (s *fakeObservabilityServer) Metrics() *observability.Metrics { return nil }

// announcingServer reports its bound address once started.
type announcingServer struct {
	*httpapi.Server
	addr chan string
}

func (s *announcingServer) Start() (<-chan error, error) {
	errCh, err := s.Server.Start()
	if err == nil {
		s.addr <- s.Server.Addr()
	}
	return errCh, err
}

type failingHTTPServer struct{ err error }

func (s failingHTTPServer) Start() (<-chan error, error) { return nil, s.err }
func (s failingHTTPServer) Stop(context.Context) error   { return nil }
func (s failingHTTPServer) Addr() string                 { return "" }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: 5 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Database: config.DatabaseConfig{
			URL:             "postgres://school:pw@localhost/school",
			AutoMigrate:     true,
			ConnectAttempts: 1,
		},
		Log:     config.LogConfig{Format: "json", Level: "debug"},
		Metrics: config.MetricsConfig{Addr: "127.0.0.1:0"},
	}
}

// serveFixture holds the fakes behind one runServeWithDeps call.
type serveFixture struct {
	db       *fakeDatabase
	migrator *fakeMigrator
	obs      *fakeObservabilityServer
	addr     chan string
	logs     *lockedBuffer
	deps     *ServeDeps
}

func newServeFixture(t *testing.T) *serveFixture {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := &serveFixture{
		db:       &fakeDatabase{},
		migrator: &fakeMigrator{},
		obs:      &fakeObservabilityServer{},
		addr:     make(chan string, 1),
		logs:     &lockedBuffer{},
	}
	f.deps = &ServeDeps{
		DatabaseConnector: func(context.Context, string, int) (Database, error) {
			return f.db, nil
		},
		MigratorFactory: func(string) (Migrator, error) {
			return f.migrator, nil
		},
		UserRepositoryFactory: func(Database) auth.UserRepository {
			return memory.NewUserRepository()
		},
		ObservabilityServerFactory: func(_ string, ready observability.ReadinessChecker) ObservabilityServer {
			f.obs.ready = ready
			return f.obs
		},
		HTTPServerFactory: func(addr string, handler http.Handler) HTTPServer {
			return &announcingServer{Server: httpapi.NewServer(addr, handler), addr: f.addr}
		},
	}
	return f
}

func (f *serveFixture) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(f.logs)
	return cmd
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body)) //nolint:noctx // test
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	out["status"] = float64(resp.StatusCode)
	return out
}

func TestServe_RegisterLoginAndShutdown(t *testing.T) {
	f := newServeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, testConfig(), f.command(), f.deps) }()

	var base string
	select {
	case addr := <-f.addr:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	reg := postJSON(t, base+"/auth/register", `{"name":"John","email":"john@x.com","password":"pw123"}`)
	assert.Equal(t, float64(http.StatusCreated), reg["status"])

	login := postJSON(t, base+"/auth/login", `{"email":"john@x.com","password":"pw123"}`)
	assert.Equal(t, float64(http.StatusOK), login["status"])
	assert.NotEmpty(t, login["token"])

	assert.True(t, f.obs.started.Load())
	assert.True(t, f.migrator.upCalled)
	assert.True(t, f.obs.ready(), "ready while the database answers")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.True(t, f.obs.stopped.Load())
	assert.True(t, f.db.closed.Load())
	assert.True(t, f.migrator.closeCalled)
	logs := f.logs.String()
	assert.Contains(t, logs, "shutdown complete")
	assert.NotContains(t, logs, "pw123")
	assert.NotContains(t, logs, "test-secret")
}

func TestServe_MissingSecretIsFatal(t *testing.T) {
	f := newServeFixture(t)
	connected := false
	f.deps.DatabaseConnector = func(context.Context, string, int) (Database, error) {
		connected = true
		return f.db, nil
	}
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""

	err := runServeWithDeps(context.Background(), cfg, f.command(), f.deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_MISSING_SECRET")
	assert.False(t, connected, "nothing starts without a secret")
}

func TestServe_StartupFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		mutate  func(f *serveFixture, cfg *config.Config)
		closeDB bool
	}{
		{
			name: "database unreachable",
			mutate: func(f *serveFixture, _ *config.Config) {
				f.deps.DatabaseConnector = func(context.Context, string, int) (Database, error) {
					return nil, boom
				}
			},
		},
		{
			name: "migration fails",
			mutate: func(f *serveFixture, _ *config.Config) {
				f.migrator.upErr = boom
			},
			closeDB: true,
		},
		{
			name: "migrator cannot be created",
			mutate: func(f *serveFixture, _ *config.Config) {
				f.deps.MigratorFactory = func(string) (Migrator, error) { return nil, boom }
			},
			closeDB: true,
		},
		{
			name: "observability server fails",
			mutate: func(f *serveFixture, _ *config.Config) {
				f.obs.startErr = boom
			},
			closeDB: true,
		},
		{
			name: "http server fails",
			mutate: func(f *serveFixture, _ *config.Config) {
				f.deps.HTTPServerFactory = func(string, http.Handler) HTTPServer {
					return failingHTTPServer{err: boom}
				}
			},
			closeDB: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServeFixture(t)
			cfg := testConfig()
			tt.mutate(f, cfg)

			err := runServeWithDeps(context.Background(), cfg, f.command(), f.deps)
			require.ErrorIs(t, err, boom)
			assert.Equal(t, tt.closeDB, f.db.closed.Load())
		})
	}
}

func TestServe_HTTPFailureStopsObservability(t *testing.T) {
	f := newServeFixture(t)
	f.deps.HTTPServerFactory = func(string, http.Handler) HTTPServer {
		return failingHTTPServer{err: errors.New("address in use")}
	}

	err := runServeWithDeps(context.Background(), testConfig(), f.command(), f.deps)
	require.Error(t, err)
	assert.True(t, f.obs.stopped.Load())
}

func TestServe_SkipsMigrationAndMetricsWhenDisabled(t *testing.T) {
	f := newServeFixture(t)
	created := false
	f.deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker) ObservabilityServer {
		created = true
		return f.obs
	}
	cfg := testConfig()
	cfg.Database.AutoMigrate = false
	cfg.Metrics.Addr = ""

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cfg, f.command(), f.deps) }()

	select {
	case <-f.addr:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}
	cancel()
	require.NoError(t, <-done)

	assert.False(t, f.migrator.upCalled)
	assert.False(t, created)
}

func TestReadinessCheck(t *testing.T) {
	assert.True(t, readinessCheck(&fakeDatabase{})())
	assert.False(t, readinessCheck(&fakeDatabase{pingErr: errors.New("down")})())
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("serve failed")

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns on context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		monitorServerErrors(ctx, cancel, make(chan error), "test")
	})
}
