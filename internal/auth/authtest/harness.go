// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package authtest

import (
	"log/slog"
	"time"

	"github.com/wardenauth/warden/internal/auth"
)

// Test token secrets. Both satisfy auth.MinSecretLength and differ.
const (
	AccessSecret  = "access-secret-for-tests-0123456789abcdef"
	RefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
)

// Harness wires a complete auth.Service over in-memory repositories.
type Harness struct {
	Clock      *Clock
	Principals *PrincipalRepository
	Refresh    *RefreshCredentialRepository
	Sessions   *SessionRepository
	Registry   *auth.SessionRegistry
	Issuer     *auth.TokenIssuer
	Service    *auth.Service
}

type harnessConfig struct {
	logger               *slog.Logger
	hasher               auth.SecretHasher
	lockout              auth.LockoutConfig
	token                auth.TokenConfig
	revokeOnSecretChange bool
}

// Option customizes a Harness.
type Option func(*harnessConfig)

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *harnessConfig) { c.logger = logger }
}

// WithHasher replaces the argon2id hasher.
func WithHasher(h auth.SecretHasher) Option {
	return func(c *harnessConfig) { c.hasher = h }
}

// WithLockout overrides the lockout policy.
func WithLockout(cfg auth.LockoutConfig) Option {
	return func(c *harnessConfig) { c.lockout = cfg }
}

// WithTokenTTLs overrides the access and refresh lifetimes.
func WithTokenTTLs(access, refresh time.Duration) Option {
	return func(c *harnessConfig) {
		c.token.AccessTTL = access
		c.token.RefreshTTL = refresh
	}
}

// WithRevokeOnSecretChange toggles revocation after ChangeSecret.
func WithRevokeOnSecretChange(on bool) Option {
	return func(c *harnessConfig) { c.revokeOnSecretChange = on }
}

// NewHarness builds a Harness whose clock starts at start.
func NewHarness(start time.Time, opts ...Option) (*Harness, error) {
	cfg := harnessConfig{
		logger:  slog.Default(),
		hasher:  auth.NewArgon2idHasher(),
		lockout: auth.DefaultLockoutConfig(),
		token: auth.TokenConfig{
			AccessSecret:  []byte(AccessSecret),
			RefreshSecret: []byte(RefreshSecret),
			AccessTTL:     auth.DefaultAccessTokenTTL,
			RefreshTTL:    auth.DefaultRefreshTokenTTL,
		},
		revokeOnSecretChange: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Harness{
		Clock:      NewClock(start),
		Principals: NewPrincipalRepository(),
		Refresh:    NewRefreshCredentialRepository(),
		Sessions:   NewSessionRepository(),
	}

	var err error
	h.Registry, err = auth.NewSessionRegistry(h.Sessions, h.Clock)
	if err != nil {
		return nil, err
	}
	h.Issuer, err = auth.NewTokenIssuer(cfg.token, auth.NewJWTSigner(auth.DefaultTokenIssuer, h.Clock), h.Refresh, h.Clock)
	if err != nil {
		return nil, err
	}
	h.Service, err = auth.NewServiceWithLogger(auth.ServiceDeps{
		Principals:           h.Principals,
		Refresh:              h.Refresh,
		Sessions:             h.Registry,
		Issuer:               h.Issuer,
		Hasher:               cfg.hasher,
		Lockout:              auth.NewLockoutPolicy(cfg.lockout),
		Clock:                h.Clock,
		RevokeOnSecretChange: cfg.revokeOnSecretChange,
	}, cfg.logger)
	if err != nil {
		return nil, err
	}
	return h, nil
}
