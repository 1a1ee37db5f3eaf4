// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// backgroundWorker is the lifecycle surface of auth.Sweeper.
type backgroundWorker interface {
	Start(ctx context.Context) error
	Stop()
}

// observabilityServer is the lifecycle surface of observability.Server.
type observabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session sweeper and metrics endpoint",
		Long: `Run the background sweeper that purges expired sessions and refresh
credentials, and serve Prometheus metrics and health probes until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g)
		},
	}
}

func runServe(cmd *cobra.Command, g *globals) error {
	cfg, logger, err := g.load(cmd, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to connect to database", err)
		return err
	}
	defer b.Close()

	// Fail at startup rather than on first use if the token setup is unusable.
	if _, err := b.service(cfg, logger); err != nil {
		return err
	}

	sweeper, err := auth.NewSweeper(b.registry, b.refresh, cfg.Sweep.Interval, logger)
	if err != nil {
		return err
	}

	var obs observabilityServer
	if cfg.Metrics.Addr != "" {
		obs = observability.NewServer(cfg.Metrics.Addr, observability.NewRegistry(version), b.pool.Ping)
	}

	logger.InfoContext(ctx, "starting warden",
		"sweep_interval", cfg.Sweep.Interval,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)
	return serve(ctx, logger, sweeper, obs, cmd.OutOrStdout())
}

// serve runs worker and obs until ctx is cancelled or obs fails. obs may be
// nil. A failed observability server is reported as the return value.
func serve(ctx context.Context, logger *slog.Logger, worker backgroundWorker, obs observabilityServer, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		return oops.Code("SWEEPER_START_FAILED").Wrap(err)
	}
	defer worker.Stop()

	failed := make(chan error, 1)
	if obs != nil {
		errCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go func() {
			failed <- monitorServerErrors(ctx, cancel, errCh, "observability", logger)
		}()
		logger.Info("observability server started", "addr", obs.Addr())
	} else {
		failed <- nil
	}

	_, _ = io.WriteString(out, "warden started\n")
	logger.Info("warden ready")

	<-ctx.Done()
	logger.Info("shutting down")

	if obs != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}
	if err := <-failed; err != nil {
		return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
	}
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors waits on a server's error channel and cancels the
// context on error. It returns the error it saw, or nil when the channel
// closed or the context ended first.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		logger.Error("server error, triggering shutdown",
			"server", serverName,
			"error", err,
		)
		cancel()
		return err
	case <-ctx.Done():
		return nil
	}
}
