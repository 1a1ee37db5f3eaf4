// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/pkg/errutil"
)

// principalLookup resolves operator-supplied emails.
type principalLookup interface {
	GetByEmail(ctx context.Context, email string) (*auth.Principal, error)
}

// withBackend loads database config, connects and runs fn.
func (g *globals) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend, out io.Writer) error) error {
	cfg, logger, err := g.load(cmd, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to connect to database", err)
		return err
	}
	defer b.Close()
	return fn(ctx, b, cmd.OutOrStdout())
}

func newSessionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke login sessions",
	}

	var email string
	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List a principal's live sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b *backend, out io.Writer) error {
				return listSessions(ctx, b.principals, b.registry, email, jsonOutput, out)
			})
		},
	}
	list.Flags().StringVar(&email, "email", "", "principal email")
	list.Flags().BoolVar(&jsonOutput, "json", false, "output sessions as JSON")
	_ = list.MarkFlagRequired("email")
	cmd.AddCommand(list)

	var revokeEmail string
	revoke := &cobra.Command{
		Use:   "revoke SESSION_ID",
		Short: "Revoke one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b *backend, out io.Writer) error {
				return revokeSession(ctx, b.principals, b.registry, revokeEmail, args[0], out)
			})
		},
	}
	revoke.Flags().StringVar(&revokeEmail, "email", "", "email of the session owner")
	_ = revoke.MarkFlagRequired("email")
	cmd.AddCommand(revoke)

	var allEmail, except string
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every live session of a principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b *backend, out io.Writer) error {
				return revokeAllSessions(ctx, b.principals, b.registry, allEmail, except, out)
			})
		},
	}
	revokeAll.Flags().StringVar(&allEmail, "email", "", "principal email")
	revokeAll.Flags().StringVar(&except, "except", "", "session ID to keep")
	_ = revokeAll.MarkFlagRequired("email")
	cmd.AddCommand(revokeAll)

	return cmd
}

func lookupPrincipal(ctx context.Context, principals principalLookup, email string) (*auth.Principal, error) {
	p, err := principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.With("email", email).Wrap(err)
	}
	return p, nil
}

func parseSessionID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_SESSION_ID").With("input", s).Wrap(err)
	}
	return id, nil
}

// sessionView is the JSON shape of a listed session. The token fingerprint
// is omitted.
type sessionView struct {
	ID        string    `json:"id"`
	IPAddress *string   `json:"ip_address,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func listSessions(ctx context.Context, principals principalLookup, registry *auth.SessionRegistry, email string, jsonOutput bool, out io.Writer) error {
	p, err := lookupPrincipal(ctx, principals, email)
	if err != nil {
		return err
	}
	sessions, err := registry.ListActive(ctx, p.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView{
				ID:        s.ID.String(),
				IPAddress: s.IPAddress,
				UserAgent: s.UserAgent,
				CreatedAt: s.CreatedAt.UTC(),
				ExpiresAt: s.ExpiresAt.UTC(),
			})
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").With("operation", "marshal sessions").Wrap(err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	_, _ = io.WriteString(out, formatSessionTable(sessions))
	return nil
}

func formatSessionTable(sessions []*auth.Session) string {
	if len(sessions) == 0 {
		return "No live sessions\n"
	}

	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tEXPIRES\tIP\tUSER AGENT")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.ExpiresAt.UTC().Format(time.RFC3339),
			orDash(s.IPAddress),
			orDash(s.UserAgent),
		)
	}
	_ = w.Flush()
	return string(buf)
}

func revokeSession(ctx context.Context, principals principalLookup, registry *auth.SessionRegistry, email, sessionID string, out io.Writer) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}
	p, err := lookupPrincipal(ctx, principals, email)
	if err != nil {
		return err
	}
	if err := registry.Revoke(ctx, id, p.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Revoked session %s\n", id)
	return nil
}

func revokeAllSessions(ctx context.Context, principals principalLookup, registry *auth.SessionRegistry, email, except string, out io.Writer) error {
	var keep *ulid.ULID
	if except != "" {
		id, err := parseSessionID(except)
		if err != nil {
			return err
		}
		keep = &id
	}
	p, err := lookupPrincipal(ctx, principals, email)
	if err != nil {
		return err
	}
	n, err := registry.RevokeAll(ctx, p.ID, keep)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Revoked %d session(s) for %s\n", n, p.Email)
	return nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// byteWriter adapts a byte slice to io.Writer for tabwriter.
type byteWriter []byte

func (b *byteWriter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
