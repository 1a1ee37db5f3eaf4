// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login results.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginLocked             = "locked"
	LoginInactive           = "inactive"
	LoginError              = "error"
)

// Refresh results.
const (
	RefreshSuccess = "success"
	RefreshInvalid = "invalid"
	RefreshExpired = "expired"
	RefreshError   = "error"
)

const (
	revokeModeSingle = "single"
	revokeModeBulk   = "bulk"
	revokeModeToken  = "token"
)

// LoginAttempts counts login attempts by result.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_auth_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// Lockouts counts locks triggered by consecutive failures.
var Lockouts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "warden_auth_lockouts_total",
		Help: "Total number of account lockouts triggered",
	},
)

// RefreshAttempts counts refresh token exchanges by result.
var RefreshAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_auth_refresh_total",
		Help: "Total number of refresh token exchanges by result",
	},
	[]string{"result"},
)

var sessionsRevoked = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_sessions_revoked_total",
		Help: "Total number of sessions revoked by mode",
	},
	[]string{"mode"},
)

// SweepDeleted counts rows removed by the expiry sweep.
var SweepDeleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_sweep_deleted_total",
		Help: "Total number of rows deleted by the expiry sweep",
	},
	[]string{"kind"},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Lockouts)
	reg.MustRegister(RefreshAttempts)
	reg.MustRegister(sessionsRevoked)
	reg.MustRegister(SweepDeleted)
}
