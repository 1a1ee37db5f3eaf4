// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/store"
	"github.com/wardenauth/warden/pkg/errutil"
)

// liveSessionCounter is satisfied by postgres.SessionRepository.
type liveSessionCounter interface {
	CountAllLive(ctx context.Context, now time.Time) (int64, error)
}

// statusReport holds what the status command prints.
type statusReport struct {
	SchemaVersion uint   `json:"schema_version"`
	SchemaName    string `json:"schema_name,omitempty"`
	Dirty         bool   `json:"dirty"`
	Pending       []uint `json:"pending"`
	// LiveSessions is nil when the schema has not been created.
	LiveSessions *int64 `json:"live_sessions,omitempty"`
}

func newStatusCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema version and live session count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, g, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, g *globals, jsonOutput bool) error {
	cfg, logger, err := g.load(cmd, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	report, err := collectStatus(ctx, m, b.sessions, time.Now())
	if err != nil {
		return err
	}
	return printStatus(report, jsonOutput, cmd.OutOrStdout())
}

func collectStatus(ctx context.Context, m migrator, counter liveSessionCounter, now time.Time) (statusReport, error) {
	st, err := m.Status()
	if err != nil {
		return statusReport{}, err
	}
	report := statusReport{
		SchemaVersion: st.Version,
		SchemaName:    st.Name,
		Dirty:         st.Dirty,
		Pending:       st.Pending,
	}
	if report.Pending == nil {
		report.Pending = []uint{}
	}
	if st.Version == 0 || st.Dirty {
		return report, nil
	}

	n, err := counter.CountAllLive(ctx, now)
	if err != nil {
		return statusReport{}, oops.With("operation", "count live sessions").Wrap(err)
	}
	report.LiveSessions = &n
	return report, nil
}

func printStatus(report statusReport, jsonOutput bool, out io.Writer) error {
	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").With("operation", "marshal status").Wrap(err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}
	_, _ = io.WriteString(out, formatStatusTable(report))
	return nil
}

func formatStatusTable(report statusReport) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Schema version:\t%s\n", formatVersion(store.Status{
		Version: report.SchemaVersion,
		Name:    report.SchemaName,
		Dirty:   report.Dirty,
	}))

	pending := "none"
	if len(report.Pending) > 0 {
		parts := make([]string, len(report.Pending))
		for i, v := range report.Pending {
			parts[i] = strconv.FormatUint(uint64(v), 10)
		}
		pending = strings.Join(parts, ", ")
	}
	_, _ = fmt.Fprintf(w, "Pending migrations:\t%s\n", pending)

	sessions := "-"
	if report.LiveSessions != nil {
		sessions = strconv.FormatInt(*report.LiveSessions, 10)
	}
	_, _ = fmt.Fprintf(w, "Live sessions:\t%s\n", sessions)

	_ = w.Flush()
	return string(buf)
}
