// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/postgres"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/logging"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/internal/store"
	"github.com/wardenauth/warden/internal/xdg"
)

const serviceName = "warden"

// globals holds state shared by every subcommand.
type globals struct {
	configFile string
}

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - principal authentication and session lifecycle",
		Long: `Warden manages principals, refresh credentials and login sessions
backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/warden/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newMigrateCmd(g))
	cmd.AddCommand(newSweepCmd(g))
	cmd.AddCommand(newSessionsCmd(g))
	cmd.AddCommand(newPrincipalsCmd(g))
	cmd.AddCommand(newStatusCmd(g))

	return cmd
}

// load reads and validates configuration for cmd, then installs the
// default logger. full selects the serving checks over the database-only ones.
func (g *globals) load(cmd *cobra.Command, full bool) (*config.Config, *slog.Logger, error) {
	path, err := xdg.ResolveConfigFile(g.configFile)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	validate := cfg.ValidateDatabase
	if full {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.SetDefault(serviceName, version, cfg.Log.Format), nil
}

// backend is the database-backed half of the auth stack.
type backend struct {
	pool       *pgxpool.Pool
	principals *postgres.PrincipalRepository
	refresh    *postgres.RefreshCredentialRepository
	sessions   *postgres.SessionRepository
	registry   *auth.SessionRegistry
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, logger)
	if err != nil {
		return nil, err
	}

	b := &backend{
		pool:       pool,
		principals: postgres.NewPrincipalRepository(pool),
		refresh:    postgres.NewRefreshCredentialRepository(pool),
		sessions:   postgres.NewSessionRepository(pool),
	}
	b.registry, err = auth.NewSessionRegistry(b.sessions, auth.SystemClock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) Close() {
	b.pool.Close()
}

// service assembles the full auth.Service. It requires token secrets, so
// only commands that loaded the full configuration may call it.
func (b *backend) service(cfg *config.Config, logger *slog.Logger) (*auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(
		cfg.TokenConfig(),
		auth.NewJWTSigner(cfg.Token.Issuer, auth.SystemClock),
		b.refresh,
		auth.SystemClock,
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("component", "token issuer").Wrap(err)
	}
	svc, err := auth.NewServiceWithLogger(auth.ServiceDeps{
		Principals:           b.principals,
		Refresh:              b.refresh,
		Sessions:             b.registry,
		Issuer:               issuer,
		Hasher:               auth.NewArgon2idHasher(),
		Lockout:              auth.NewLockoutPolicy(cfg.LockoutConfig()),
		Clock:                auth.SystemClock,
		RevokeOnSecretChange: cfg.Session.RevokeOnSecretChange,
	}, logger)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("component", "auth service").Wrap(err)
	}
	return svc, nil
}

var (
	_ migrator            = (*store.Migrator)(nil)
	_ liveSessionCounter  = (*postgres.SessionRepository)(nil)
	_ principalLookup     = (*postgres.PrincipalRepository)(nil)
	_ backgroundWorker    = (*auth.Sweeper)(nil)
	_ sweepRunner         = (*auth.Sweeper)(nil)
	_ observabilityServer = (*observability.Server)(nil)
)
