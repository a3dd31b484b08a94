// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the PostgreSQL schema. Without a subcommand, applies all
pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, factory)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, factory)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops every table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateDown(cmd, factory)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatus(cmd, factory)
		},
	})

	return cmd
}

// openMigrator loads the database settings and creates a migrator.
func openMigrator(cmd *cobra.Command, factory MigratorFactory) (Migrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "validate configuration").Wrap(err)
	}

	cmd.Println("Connecting to database...")
	migrator, err := factory(cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return migrator, nil
}

func closeMigrator(cmd *cobra.Command, migrator Migrator) {
	if err := migrator.Close(); err != nil {
		cmd.PrintErrf("warning: failed to close migrator: %v\n", err)
	}
}

func runMigrateUp(cmd *cobra.Command, factory MigratorFactory) error {
	migrator, err := openMigrator(cmd, factory)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	cmd.Println("Running migrations...")
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, factory MigratorFactory) error {
	migrator, err := openMigrator(cmd, factory)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	cmd.Println("Rolling back migrations...")
	if err := migrator.Down(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}

	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, factory MigratorFactory) error {
	migrator, err := openMigrator(cmd, factory)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	st, err := migrator.Status()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read migration status").Wrap(err)
	}

	cmd.Printf("Current version: %d\n", st.Current)
	cmd.Printf("Latest version:  %d\n", st.Latest)
	if st.Dirty {
		cmd.Println("WARNING: database is dirty; a previous migration failed part way")
	}
	if len(st.Pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}
	cmd.Printf("Pending migrations: %v\n", st.Pending)
	return nil
}
