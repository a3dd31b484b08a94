// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/schoolapi/pkg/errutil"
)

type fakePinger struct {
	failures int
	calls    int
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &fakePinger{failures: 2}
		require.NoError(t, PingWithRetry(context.Background(), p, 3))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		err := PingWithRetry(context.Background(), p, 2)
		require.Error(t, err)
		assert.Equal(t, 2, p.calls)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		errutil.AssertErrorContext(t, err, "attempts", 2)
	})

	t.Run("non-positive attempts still pings once", func(t *testing.T) {
		p := &fakePinger{}
		require.NoError(t, PingWithRetry(context.Background(), p, 0))
		assert.Equal(t, 1, p.calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &fakePinger{failures: 10}
		err := PingWithRetry(ctx, p, 5)
		require.Error(t, err)
		assert.Less(t, p.calls, 5)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::", 1)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
