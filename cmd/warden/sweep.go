// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
)

// sweepRunner is satisfied by auth.Sweeper.
type sweepRunner interface {
	RunOnce(ctx context.Context) (auth.SweepResult, error)
}

func newSweepCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup cycle and exit",
		Long: `Delete inactive or expired sessions and expired refresh credentials once.
Suitable for cron when serve is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b *backend, out io.Writer) error {
				sweeper, err := auth.NewSweeper(b.registry, b.refresh, 0, nil)
				if err != nil {
					return err
				}
				return runSweep(ctx, sweeper, out)
			})
		},
	}
}

// runSweep prints what was removed even when one half of the sweep failed.
func runSweep(ctx context.Context, sweeper sweepRunner, out io.Writer) error {
	result, err := sweeper.RunOnce(ctx)
	_, _ = fmt.Fprintf(out, "Deleted %d session(s) and %d refresh credential(s)\n",
		result.Sessions, result.RefreshCredentials)
	return err
}
