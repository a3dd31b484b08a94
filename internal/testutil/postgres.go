// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package testutil starts disposable PostgreSQL containers for integration tests.
package testutil

import (
	"context"

	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres is a running PostgreSQL container.
type Postgres struct {
	container *postgres.PostgresContainer
	URL       string
}

// StartPostgres starts a PostgreSQL 16 container and returns its connection URL.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("schoolapi"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		return nil, oops.Code("TEST_DB_START_FAILED").Wrap(err)
	}

	url, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx) //nolint:errcheck // startup error takes precedence
		return nil, oops.Code("TEST_DB_START_FAILED").Wrap(err)
	}
	return &Postgres{container: c, URL: url}, nil
}

// Stop terminates the container.
func (p *Postgres) Stop(ctx context.Context) error {
	if err := p.container.Terminate(ctx); err != nil {
		return oops.Code("TEST_DB_STOP_FAILED").Wrap(err)
	}
	return nil
}
