// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that triggers a lock.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long a triggered lock lasts.
	DefaultLockoutDuration = 30 * time.Minute
)

// LockoutConfig configures a LockoutPolicy.
type LockoutConfig struct {
	// Threshold defaults to DefaultLockoutThreshold if zero or negative.
	Threshold int

	// Duration defaults to DefaultLockoutDuration if zero or negative.
	Duration time.Duration
}

// DefaultLockoutConfig returns the default lockout configuration.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// LockoutState is the persisted failure counter and lock timestamp.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutDecision is the outcome of evaluating a login attempt.
type LockoutDecision struct {
	Allowed bool

	// MinutesRemaining is set when Allowed is false.
	MinutesRemaining int
}

// LockoutPolicy decides whether a login attempt may proceed.
// All methods are pure; persistence is the caller's job.
type LockoutPolicy struct {
	threshold int
	duration  time.Duration
}

// NewLockoutPolicy creates a LockoutPolicy, applying defaults for unset fields.
func NewLockoutPolicy(cfg LockoutConfig) *LockoutPolicy {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	return &LockoutPolicy{threshold: cfg.Threshold, duration: cfg.Duration}
}

// Threshold returns the failure count that triggers a lock.
func (p *LockoutPolicy) Threshold() int { return p.threshold }

// Duration returns the lock length.
func (p *LockoutPolicy) Duration() time.Duration { return p.duration }

// Evaluate refuses the attempt only while an active lock is in force.
// The failure counter alone never blocks.
func (p *LockoutPolicy) Evaluate(failedAttempts int, lockedUntil *time.Time, now time.Time) LockoutDecision {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return LockoutDecision{Allowed: true}
	}
	return LockoutDecision{
		Allowed:          false,
		MinutesRemaining: ceilMinutes(lockedUntil.Sub(now)),
	}
}

// OnFailure returns the state after one more failure on top of failedAttempts.
// A lock is set when the post-increment count reaches the threshold.
func (p *LockoutPolicy) OnFailure(failedAttempts int, now time.Time) LockoutState {
	next := failedAttempts + 1
	state := LockoutState{FailedAttempts: next}
	if next >= p.threshold {
		until := now.Add(p.duration)
		state.LockedUntil = &until
	}
	return state
}

// OnSuccess returns the cleared state.
func (p *LockoutPolicy) OnSuccess() LockoutState {
	return LockoutState{FailedAttempts: 0, LockedUntil: nil}
}

// LockedError builds the error returned while a lock is in force.
func (d LockoutDecision) LockedError() error {
	return oops.Code("AUTH_ACCOUNT_LOCKED").
		With("minutes_remaining", d.MinutesRemaining).
		Wrapf(ErrUnauthorized, "account is locked, try again in %d minutes", d.MinutesRemaining)
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
