// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
)

// withService loads the full config, connects and builds the auth service.
func (g *globals) withService(cmd *cobra.Command, fn func(ctx context.Context, b *backend, svc *auth.Service, out io.Writer) error) error {
	cfg, logger, err := g.load(cmd, true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	svc, err := b.service(cfg, logger)
	if err != nil {
		return err
	}
	return fn(ctx, b, svc, cmd.OutOrStdout())
}

func newPrincipalsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principals",
		Short: "Administer principals",
	}

	var (
		email       string
		displayName string
		activate    bool
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a principal; the secret is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withService(cmd, func(ctx context.Context, _ *backend, svc *auth.Service, out io.Writer) error {
				return registerPrincipal(ctx, svc, email, displayName, activate, cmd.InOrStdin(), out)
			})
		},
	}
	register.Flags().StringVar(&email, "email", "", "principal email")
	register.Flags().StringVar(&displayName, "display-name", "", "display name")
	register.Flags().BoolVar(&activate, "activate", false, "mark the principal ACTIVE immediately")
	_ = register.MarkFlagRequired("email")
	cmd.AddCommand(register)

	var statusEmail, status string
	setStatus := &cobra.Command{
		Use:   "set-status",
		Short: "Change a principal's status (PENDING, ACTIVE or SUSPENDED)",
		Long: `Change a principal's status. Suspending a principal also revokes every
session and refresh credential it holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withService(cmd, func(ctx context.Context, b *backend, svc *auth.Service, out io.Writer) error {
				return setPrincipalStatus(ctx, b.principals, svc, statusEmail, status, out)
			})
		},
	}
	setStatus.Flags().StringVar(&statusEmail, "email", "", "principal email")
	setStatus.Flags().StringVar(&status, "status", "", "new status")
	_ = setStatus.MarkFlagRequired("email")
	_ = setStatus.MarkFlagRequired("status")
	cmd.AddCommand(setStatus)

	var showEmail string
	var jsonOutput bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show a principal's status, lockout and last login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b *backend, out io.Writer) error {
				return showPrincipal(ctx, b.principals, showEmail, jsonOutput, out)
			})
		},
	}
	show.Flags().StringVar(&showEmail, "email", "", "principal email")
	show.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = show.MarkFlagRequired("email")
	cmd.AddCommand(show)

	return cmd
}

// readSecret reads the first line of in, without its line terminator.
func readSecret(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("SECRET_READ_FAILED").Wrap(err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", oops.Code("SECRET_REQUIRED").Errorf("secret must be supplied on stdin")
	}
	return secret, nil
}

func registerPrincipal(ctx context.Context, svc *auth.Service, email, displayName string, activate bool, in io.Reader, out io.Writer) error {
	secret, err := readSecret(in)
	if err != nil {
		return err
	}
	p, err := svc.Register(ctx, email, secret, auth.Profile{DisplayName: displayName})
	if err != nil {
		return err
	}
	status := p.Status
	if activate {
		if err := svc.SetStatus(ctx, p.ID, auth.StatusActive); err != nil {
			return oops.With("principal_id", p.ID.String()).Wrap(err)
		}
		status = auth.StatusActive
	}
	_, _ = fmt.Fprintf(out, "Registered %s (%s) as %s\n", p.Email, p.ID, status)
	return nil
}

func setPrincipalStatus(ctx context.Context, principals principalLookup, svc *auth.Service, email, status string, out io.Writer) error {
	next := auth.Status(strings.ToUpper(strings.TrimSpace(status)))
	if !next.Valid() {
		return oops.Code("PRINCIPAL_INVALID_STATUS").With("status", status).
			Errorf("unknown status %q: must be PENDING, ACTIVE or SUSPENDED", status)
	}
	p, err := lookupPrincipal(ctx, principals, email)
	if err != nil {
		return err
	}
	if err := svc.SetStatus(ctx, p.ID, next); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s: %s -> %s\n", p.Email, p.Status, next)
	return nil
}

// principalView is the operator-facing shape of a principal.
type principalView struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name,omitempty"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP    *string    `json:"last_login_ip,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newPrincipalView(p *auth.Principal) principalView {
	p = p.Sanitized()
	return principalView{
		ID:             p.ID.String(),
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		Role:           p.Role,
		Status:         string(p.Status),
		FailedAttempts: p.FailedAttempts,
		LockedUntil:    p.LockedUntil,
		LastLoginAt:    p.LastLoginAt,
		LastLoginIP:    p.LastLoginIP,
		CreatedAt:      p.CreatedAt,
	}
}

func showPrincipal(ctx context.Context, principals principalLookup, email string, jsonOutput bool, out io.Writer) error {
	p, err := lookupPrincipal(ctx, principals, email)
	if err != nil {
		return err
	}
	view := newPrincipalView(p)

	if jsonOutput {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").With("operation", "marshal principal").Wrap(err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", view.ID)
	_, _ = fmt.Fprintf(w, "Email:\t%s\n", view.Email)
	if view.DisplayName != "" {
		_, _ = fmt.Fprintf(w, "Display name:\t%s\n", view.DisplayName)
	}
	_, _ = fmt.Fprintf(w, "Role:\t%s\n", view.Role)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", view.Status)
	_, _ = fmt.Fprintf(w, "Failed attempts:\t%d\n", view.FailedAttempts)
	_, _ = fmt.Fprintf(w, "Locked until:\t%s\n", formatTime(view.LockedUntil))
	_, _ = fmt.Fprintf(w, "Last login:\t%s\n", formatTime(view.LastLoginAt))
	_, _ = fmt.Fprintf(w, "Last login IP:\t%s\n", orDash(view.LastLoginIP))
	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
