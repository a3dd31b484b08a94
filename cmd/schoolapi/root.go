// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/schoolapi/internal/config"
	"github.com/holomush/schoolapi/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the schoolapi CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schoolapi",
		Short: "School API - user registration and login service",
		Long: `School API registers users, issues signed session tokens on login,
and serves the user list to holders of a valid token.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/schoolapi/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads configuration for cmd, layering in the flags it defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path, _ = xdg.DefaultConfigFile()
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(path, cmd.Flags())
}
