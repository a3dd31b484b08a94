//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/schoolapi/internal/store"
	"github.com/holomush/schoolapi/internal/testutil"
)

func TestMigrator_FullCycle(t *testing.T) {
	ctx := context.Background()

	pg, err := testutil.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Stop(ctx) })

	migrator, err := store.NewMigrator(pg.URL)
	require.NoError(t, err)
	defer migrator.Close()

	st, err := migrator.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(0), st.Current)
	assert.NotEmpty(t, st.Pending)

	require.NoError(t, migrator.Up())

	st, err = migrator.Status()
	require.NoError(t, err)
	assert.Equal(t, st.Latest, st.Current)
	assert.Empty(t, st.Pending)
	assert.False(t, st.Dirty)

	pool, err := store.Connect(ctx, pg.URL, 3)
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM pg_constraint WHERE conname = 'users_email_key'
	)`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "users.email must carry a unique constraint")

	require.NoError(t, migrator.Down())
	version, _, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, migrator.Up(), "schema should re-apply cleanly")
}
