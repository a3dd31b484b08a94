// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/schoolapi/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("USER_LIST_FAILED").
		With("operation", "list users").
		Errorf("query failed")

	errutil.LogError(context.Background(), logger, "request failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "request failed", logEntry["msg"])
	assert.Equal(t, "USER_LIST_FAILED", logEntry["code"])
	assert.Equal(t, map[string]any{"operation": "list users"}, logEntry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "request failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "standard error", logEntry["error"])
	assert.NotContains(t, logEntry, "code")
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
	assert.Equal(t, "OUTER", errutil.Code(oops.Code("OUTER").Errorf("only one")))
	assert.Equal(t, "INNER", errutil.Code(oops.Code("OUTER").Wrap(oops.Code("INNER").Errorf("deep"))))
}
