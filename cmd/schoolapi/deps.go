// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"

	"github.com/holomush/schoolapi/internal/auth"
	"github.com/holomush/schoolapi/internal/auth/postgres"
	"github.com/holomush/schoolapi/internal/httpapi"
	"github.com/holomush/schoolapi/internal/observability"
	"github.com/holomush/schoolapi/internal/store"
)

// ServeDeps holds the injectable dependencies of the serve command.
// Nil fields are replaced with the production implementations.
type ServeDeps struct {
	// DatabaseConnector opens and pings the database pool.
	DatabaseConnector func(ctx context.Context, url string, attempts int) (Database, error)

	// MigratorFactory creates the migrator used when auto-migrate is on.
	MigratorFactory MigratorFactory

	// UserRepositoryFactory builds the user repository over the pool.
	UserRepositoryFactory func(db Database) auth.UserRepository

	// ObservabilityServerFactory creates the metrics and health server.
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	HTTPServerFactory func(addr string, handler http.Handler) HTTPServer
}

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Status() (store.Status, error)
	Close() error
}

// MigratorFactory creates a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	//nolint:wrapcheck // store errors carry their own codes
	return store.NewMigrator(databaseURL)
}

// withDefaults fills every nil field of deps.
func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.DatabaseConnector == nil {
		out.DatabaseConnector = func(ctx context.Context, url string, attempts int) (Database, error) {
			pool, err := store.Connect(ctx, url, attempts)
			if err != nil {
				//nolint:wrapcheck // store errors carry their own codes
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigratorFactory
	}
	if out.UserRepositoryFactory == nil {
		out.UserRepositoryFactory = func(db Database) auth.UserRepository {
			return postgres.NewUserRepository(db)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.HTTPServerFactory == nil {
		out.HTTPServerFactory = func(addr string, handler http.Handler) HTTPServer {
			return httpapi.NewServer(addr, handler)
		}
	}
	return &out
}
