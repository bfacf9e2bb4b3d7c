// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/novacriatura/novacriatura/internal/config"
	"github.com/novacriatura/novacriatura/internal/store"
)

// migrator is the subset of store.Migrator used by the migrate commands.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// migratorFactory opens a migrator; tests replace it.
var migratorFactory = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema migrations.`,
		RunE:  withMigrator(runMigrateUp),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateUp),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
	}
	steps := down.Flags().Int("steps", 1, "number of migrations to roll back")
	all := down.Flags().Bool("all", false, "roll back every migration (drops all data)")
	down.RunE = withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
		if *all {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}
		if *steps <= 0 {
			return oops.Code("INVALID_STEPS").Errorf("steps must be positive, got %d", *steps)
		}
		if err := m.Steps(-*steps); err != nil {
			return err
		}
		cmd.Printf("Rolled back %d migration(s)\n", *steps)
		return nil
	})
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateStatus),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty
flag. Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced schema version to %d\n", version)
			return nil
		}),
	})

	return cmd
}

// withMigrator loads the database URL from the configuration and opens a
// migrator around fn.
func withMigrator(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil, false)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return oops.Code(config.CodeInvalid).Errorf("database.url is required (set NOVACRIATURA_DATABASE__URL or DATABASE_URL)")
		}

		m, err := migratorFactory(cfg.Database.URL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
			}
		}()

		return fn(cmd, m, args)
	}
}

func runMigrateUp(cmd *cobra.Command, m migrator, _ []string) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m migrator, _ []string) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	cmd.Printf("Current version: %d\n", st.Version)
	if st.Dirty {
		cmd.Println("State: DIRTY (repair the schema, then run 'migrate force VERSION')")
	}
	cmd.Printf("Applied: %s\n", formatVersions(st.Applied))
	cmd.Printf("Pending: %s\n", formatVersions(st.Pending))
	return nil
}

func formatVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			parts = append(parts, strconv.FormatUint(uint64(v), 10))
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}
