// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/schoolapi/internal/auth"
	"github.com/holomush/schoolapi/internal/config"
	"github.com/holomush/schoolapi/internal/httpapi"
	"github.com/holomush/schoolapi/internal/logging"
	"github.com/holomush/schoolapi/internal/observability"
)

const (
	serviceName  = "schoolapi"
	readyTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server. Configuration is read once at startup
from defaults, the --config file, the environment and flags.
JWT_SECRET must be set or the server refuses to start.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the API server until a signal arrives, ctx is
// cancelled or a server fails. If deps is nil, production implementations
// are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "validate configuration").Wrap(err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})

	logger.Info("starting server",
		"addr", cfg.Addr(),
		"log_format", cfg.Log.Format,
		"config", configFile,
	)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return oops.Code("TOKEN_SERVICE_FAILED").Wrap(err)
	}
	hasher, err := auth.NewBcryptHasherWithCost(cfg.Auth.BcryptCost)
	if err != nil {
		return oops.Code("HASHER_FAILED").Wrap(err)
	}

	db, err := deps.DatabaseConnector(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := runAutoMigrate(deps.MigratorFactory, cfg.Database.URL); err != nil {
			return err
		}
	}

	creds, err := auth.NewCredentialStore(deps.UserRepositoryFactory(db), hasher)
	if err != nil {
		return oops.Code("CREDENTIAL_STORE_FAILED").Wrap(err)
	}
	svc, err := auth.NewServiceWithLogger(creds, tokens, logger)
	if err != nil {
		return oops.Code("AUTH_SERVICE_FAILED").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readinessCheck(db))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler, err := httpapi.NewHandler(svc, httpapi.WithLogger(logger), httpapi.WithMetrics(metrics))
	if err != nil {
		stopObservability(obsServer, shutdownCtx)
		return oops.Code("HTTP_HANDLER_FAILED").Wrap(err)
	}

	apiServer := deps.HTTPServerFactory(cfg.Addr(), handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer, shutdownCtx)
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "http")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("Server listening on %s\n", apiServer.Addr())
	logger.Info("server ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	sctx, scancel := shutdownCtx()
	defer scancel()

	if err := apiServer.Stop(sctx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(sctx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigrate applies pending migrations.
func runAutoMigrate(factory MigratorFactory, databaseURL string) error {
	slog.Info("applying database migrations")
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// readinessCheck reports ready while the database answers pings.
func readinessCheck(db Database) observability.ReadinessChecker {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		return db.Ping(ctx) == nil
	}
}

func stopObservability(srv ObservabilityServer, newCtx func() (context.Context, context.CancelFunc)) {
	if srv == nil {
		return
	}
	ctx, cancel := newCtx()
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server error, initiating shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
