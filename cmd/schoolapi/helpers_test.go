// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// schoolEnv lists every variable the config layer reads.
var schoolEnv = []string{
	"HOST", "PORT", "JWT_SECRET", "TOKEN_TTL", "BCRYPT_COST", "DATABASE_URL",
	"AUTO_MIGRATE", "CONNECT_ATTEMPTS", "LOG_FORMAT", "LOG_LEVEL", "METRICS_ADDR",
}

// clearEnv unsets the config variables for the duration of the test and
// points the default config lookup at an empty directory.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range schoolEnv {
		t.Setenv(key, "")
		os.Unsetenv(key) //nolint:errcheck // restored by t.Setenv cleanup
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := NewRootCmd()
	return execute(cmd, args...)
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p) //nolint:wrapcheck // bytes.Buffer never fails
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
