// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/store"
	"github.com/wardenauth/warden/pkg/errutil"
)

// migrator is the subset of store.Migrator the CLI drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// withMigrator loads database config, opens a migrator and runs fn against it.
func (g *globals) withMigrator(cmd *cobra.Command, fn func(m migrator, out io.Writer) error) error {
	cfg, logger, err := g.load(cmd, false)
	if err != nil {
		return err
	}
	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()
	return fn(m, cmd.OutOrStdout())
}

func newMigrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the auth schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withMigrator(cmd, migrateUp)
		},
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the last migration, or --steps of them. --all drops the
entire schema, including every principal, credential and session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withMigrator(cmd, func(m migrator, out io.Writer) error {
				return migrateDown(m, out, steps, all)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withMigrator(cmd, migrateVersion)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied without running it",
		Long: `Force the recorded schema version. Use only to clear a dirty state
after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return g.withMigrator(cmd, func(m migrator, out io.Writer) error {
				return migrateForce(m, out, version)
			})
		},
	})

	return cmd
}

func migrateUp(m migrator, out io.Writer) error {
	before, _, err := m.Version()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		return oops.With("operation", "run migrations").Wrap(err)
	}
	after, _, err := m.Version()
	if err != nil {
		return err
	}
	if after == before {
		_, _ = fmt.Fprintf(out, "Schema is up to date (version %d)\n", after)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Migrated from version %d to %d\n", before, after)
	return nil
}

func migrateDown(m migrator, out io.Writer, steps int, all bool) error {
	if all {
		if err := m.Down(); err != nil {
			return oops.With("operation", "roll back all migrations").Wrap(err)
		}
		_, _ = fmt.Fprintln(out, "Rolled back all migrations")
		return nil
	}
	if steps < 1 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("steps must be at least 1")
	}
	if err := m.Steps(-steps); err != nil {
		return oops.With("operation", "roll back migrations").Wrap(err)
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Rolled back %d migration(s), now at version %d\n", steps, version)
	return nil
}

func migrateVersion(m migrator, out io.Writer) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, formatVersion(status))
	return nil
}

func migrateForce(m migrator, out io.Writer, version int) error {
	if err := m.Force(version); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Forced schema version to %d\n", version)
	return nil
}

// formatVersion renders "3 (000003_name)", with a dirty marker when set.
func formatVersion(s store.Status) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(s.Version), 10))
	if s.Name != "" {
		b.WriteString(" (" + s.Name + ")")
	}
	if s.Dirty {
		b.WriteString(" [dirty]")
	}
	return b.String()
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
