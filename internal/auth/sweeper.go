// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// DefaultSweepInterval is how often the Sweeper runs when no interval is set.
const DefaultSweepInterval = time.Hour

// SweepResult reports how many rows a sweep cycle deleted.
type SweepResult struct {
	Sessions           int64
	RefreshCredentials int64
}

// Sweeper periodically hard-deletes expired or inactive sessions and expired
// refresh credentials.
type Sweeper struct {
	sessions *SessionRegistry
	refresh  RefreshCredentialRepository
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. A non-positive interval uses DefaultSweepInterval.
func NewSweeper(sessions *SessionRegistry, refresh RefreshCredentialRepository, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if sessions == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("session registry is required")
	}
	if refresh == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("refresh credential repository is required")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sessions: sessions,
		refresh:  refresh,
		interval: interval,
		logger:   logger,
		clock:    sessions.clock.Now,
	}, nil
}

// RunOnce executes a single sweep. Both deletions are attempted even if the
// first fails; errors are combined.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   []error
	)

	n, err := w.sessions.SweepExpired(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "sweep sessions failed", "error", err)
		errs = append(errs, err)
	} else {
		result.Sessions = n
		SweepDeleted.WithLabelValues("session").Add(float64(n))
	}

	n, err = w.refresh.DeleteExpired(ctx, w.clock())
	if err != nil {
		w.logger.ErrorContext(ctx, "sweep refresh credentials failed", "error", err)
		errs = append(errs, oops.Code("REFRESH_SWEEP_FAILED").Wrap(err))
	} else {
		result.RefreshCredentials = n
		SweepDeleted.WithLabelValues("refresh").Add(float64(n))
	}

	if result.Sessions > 0 || result.RefreshCredentials > 0 {
		w.logger.InfoContext(ctx, "swept expired auth state",
			"sessions", result.Sessions,
			"refresh_credentials", result.RefreshCredentials,
		)
	}
	return result, errors.Join(errs...)
}

// Start begins periodic sweeping. The first cycle runs immediately.
// Starting a running sweeper fails; Stop it first.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return oops.Code("SWEEPER_ALREADY_STARTED").Errorf("sweeper is already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the sweeper and waits for the running cycle to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
			}
		}
	}
}
