// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummySecretDigest is verified when the email is unknown so the response
// time does not reveal whether the principal exists.
// It is NOT a credential and never matches any secret.
//
//nolint:gosec // G101: intentionally fake digest for timing attack prevention.
const dummySecretDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ServiceDeps are the collaborators of Service.
type ServiceDeps struct {
	Principals PrincipalRepository
	Refresh    RefreshCredentialRepository
	Sessions   *SessionRegistry
	Issuer     *TokenIssuer
	Hasher     SecretHasher

	// Lockout defaults to DefaultLockoutConfig when nil.
	Lockout *LockoutPolicy

	// Clock defaults to SystemClock when nil.
	Clock Clock

	// RevokeOnSecretChange drops every refresh credential and session of a
	// principal after a successful ChangeSecret.
	RevokeOnSecretChange bool
}

// Service orchestrates registration, login, refresh, logout and secret changes.
type Service struct {
	principals           PrincipalRepository
	refresh              RefreshCredentialRepository
	sessions             *SessionRegistry
	issuer               *TokenIssuer
	hasher               SecretHasher
	lockout              *LockoutPolicy
	clock                Clock
	logger               *slog.Logger
	revokeOnSecretChange bool
}

// NewService creates a Service that logs to slog.Default().
func NewService(deps ServiceDeps) (*Service, error) {
	return NewServiceWithLogger(deps, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(deps ServiceDeps, logger *slog.Logger) (*Service, error) {
	switch {
	case deps.Principals == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("principals repository is required")
	case deps.Refresh == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("refresh credential repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session registry is required")
	case deps.Issuer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("secret hasher is required")
	case logger == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	if deps.Lockout == nil {
		deps.Lockout = NewLockoutPolicy(DefaultLockoutConfig())
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	return &Service{
		principals:           deps.Principals,
		refresh:              deps.Refresh,
		sessions:             deps.Sessions,
		issuer:               deps.Issuer,
		hasher:               deps.Hasher,
		lockout:              deps.Lockout,
		clock:                deps.Clock,
		logger:               logger,
		revokeOnSecretChange: deps.RevokeOnSecretChange,
	}, nil
}

// Sessions exposes the session registry.
func (s *Service) Sessions() *SessionRegistry { return s.sessions }

// LoginResult is returned by a successful Login.
type LoginResult struct {
	// Principal has its secret digest stripped.
	Principal *Principal
	Tokens    *TokenPair

	// Session is nil when the login carried no origin IP.
	Session *Session
}

// Register creates a PENDING principal.
func (s *Service) Register(ctx context.Context, email, secret string, profile Profile) (*Principal, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	_, err = s.principals.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}

	digest, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash secret").Wrap(err)
	}

	principal, err := NewPrincipal(normalized, digest, profile, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, emailTaken()
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create principal").
			Wrap(err)
	}

	s.logger.DebugContext(ctx, "principal registered", "principal_id", principal.ID.String())
	return principal.Sanitized(), nil
}

// Login verifies credentials and issues a token pair.
// A session is recorded only when ip is non-nil.
func (s *Service) Login(ctx context.Context, email, secret string, ip, userAgent *string) (*LoginResult, error) {
	principal, result, err := s.verifyCredentials(ctx, email, secret)
	if err != nil {
		LoginAttempts.WithLabelValues(result).Inc()
		return nil, err
	}

	tokens, err := s.issuer.Issue(ctx, principal)
	if err != nil {
		LoginAttempts.WithLabelValues(LoginError).Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue tokens").
			Wrap(err)
	}

	var session *Session
	if ip != nil {
		session, err = s.sessions.Create(ctx, principal.ID, tokens.AccessToken, tokens.AccessExpiresAt, ip, userAgent)
		if err != nil {
			LoginAttempts.WithLabelValues(LoginError).Inc()
			return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
				With("operation", "create session").
				Wrap(err)
		}
	}

	now := s.clock.Now()
	if err := s.principals.RecordLogin(ctx, principal.ID, now, ip); err != nil {
		s.warnBestEffort(ctx, "record_login", principal.ID, err)
	}
	principal.LastLoginAt = &now
	principal.LastLoginIP = ip

	LoginAttempts.WithLabelValues(LoginSuccess).Inc()
	return &LoginResult{
		Principal: principal.Sanitized(),
		Tokens:    tokens,
		Session:   session,
	}, nil
}

// ValidateUser checks credentials without issuing tokens.
// It goes through the same lockout-aware path as Login: locked, inactive or
// mismatching credentials return (nil, nil) and mismatches count as failures.
func (s *Service) ValidateUser(ctx context.Context, email, secret string) (*Principal, error) {
	principal, _, err := s.verifyCredentials(ctx, email, secret)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return principal.Sanitized(), nil
}

// RefreshToken exchanges a stored refresh token for a new pair.
// The consumed credential is deleted before the new pair is minted, so a
// refresh token validates at most once.
func (s *Service) RefreshToken(ctx context.Context, principalID ulid.ULID, refreshToken string) (*TokenPair, error) {
	pair, result, err := s.rotate(ctx, principalID, refreshToken)
	RefreshAttempts.WithLabelValues(result).Inc()
	return pair, err
}

func (s *Service) rotate(ctx context.Context, principalID ulid.ULID, refreshToken string) (*TokenPair, string, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, RefreshInvalid, refreshInvalid()
		}
		return nil, RefreshError, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get principal by id").
			Wrap(err)
	}
	if principal.Status != StatusActive {
		return nil, RefreshInvalid, accountInactive()
	}

	cred, err := s.refresh.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, RefreshInvalid, refreshInvalid()
		}
		return nil, RefreshError, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get refresh credential").
			Wrap(err)
	}
	if cred.PrincipalID != principalID {
		return nil, RefreshInvalid, refreshInvalid()
	}

	if cred.IsExpiredAt(s.clock.Now()) {
		if err := s.refresh.DeleteByID(ctx, cred.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.warnBestEffort(ctx, "delete_expired_refresh", principalID, err)
		}
		return nil, RefreshExpired, oops.Code("AUTH_REFRESH_EXPIRED").Wrapf(ErrUnauthorized, "refresh token expired")
	}

	claims, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil || claims.Subject != principalID.String() {
		return nil, RefreshInvalid, refreshInvalid()
	}

	if err := s.refresh.DeleteByID(ctx, cred.ID); err != nil {
		// Another request consumed the same token first.
		if errors.Is(err, ErrNotFound) {
			return nil, RefreshInvalid, refreshInvalid()
		}
		return nil, RefreshError, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "consume refresh credential").
			Wrap(err)
	}

	pair, err := s.issuer.Issue(ctx, principal)
	if err != nil {
		return nil, RefreshError, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "issue tokens").
			Wrap(err)
	}
	return pair, RefreshSuccess, nil
}

// Logout deletes the refresh credential and, when given, revokes the session
// bound to accessToken. It succeeds even if nothing matched.
func (s *Service) Logout(ctx context.Context, principalID ulid.ULID, refreshToken string, accessToken *string) error {
	if _, err := s.refresh.DeleteByTokenHash(ctx, principalID, HashToken(refreshToken)); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete refresh credential").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	if accessToken != nil {
		if _, err := s.sessions.RevokeByToken(ctx, *accessToken); err != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "revoke session").
				With("principal_id", principalID.String()).
				Wrap(err)
		}
	}
	return nil
}

// ChangeSecret replaces the secret after verifying the old one.
// The old secret is checked under the same lockout rules as Login.
func (s *Service) ChangeSecret(ctx context.Context, principalID ulid.ULID, oldSecret, newSecret string) error {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidCredentials()
		}
		return oops.Code("AUTH_CHANGE_SECRET_FAILED").
			With("operation", "get principal by id").
			Wrap(err)
	}

	if decision := s.lockout.Evaluate(principal.FailedAttempts, principal.LockedUntil, s.clock.Now()); !decision.Allowed {
		return decision.LockedError()
	}

	ok, err := s.hasher.Verify(oldSecret, principal.SecretDigest)
	if err != nil {
		return oops.Code("AUTH_CHANGE_SECRET_FAILED").
			With("operation", "verify secret").
			Wrap(err)
	}
	if !ok {
		s.recordFailure(ctx, principal)
		return invalidCredentials()
	}
	if principal.FailedAttempts > 0 || principal.LockedUntil != nil {
		if err := s.principals.UpdateLockout(ctx, principal.ID, s.lockout.OnSuccess()); err != nil {
			s.warnBestEffort(ctx, "record_success", principal.ID, err)
		}
	}

	digest, err := s.hasher.Hash(newSecret)
	if err != nil {
		return oops.Code("AUTH_CHANGE_SECRET_FAILED").With("operation", "hash secret").Wrap(err)
	}
	if err := s.principals.UpdateSecret(ctx, principalID, digest); err != nil {
		return oops.Code("AUTH_CHANGE_SECRET_FAILED").
			With("operation", "update secret").
			Wrap(err)
	}

	if s.revokeOnSecretChange {
		return s.revokeEverything(ctx, principalID)
	}
	return nil
}

// SetStatus moves a principal between PENDING, ACTIVE and SUSPENDED.
// Suspension also revokes every session and refresh credential.
func (s *Service) SetStatus(ctx context.Context, principalID ulid.ULID, status Status) error {
	if !status.Valid() {
		return oops.Code("PRINCIPAL_INVALID_STATUS").With("status", string(status)).Errorf("unknown status %q", status)
	}
	if err := s.principals.UpdateStatus(ctx, principalID, status); err != nil {
		return oops.Code("AUTH_SET_STATUS_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	if status == StatusSuspended {
		return s.revokeEverything(ctx, principalID)
	}
	return nil
}

// Authenticate verifies an access token and requires its session to be live.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, *Session, error) {
	claims, err := s.issuer.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, nil, oops.Code("AUTH_ACCESS_INVALID").Wrapf(ErrUnauthorized, "invalid access token")
	}
	session, err := s.sessions.Validate(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, oops.Code("AUTH_SESSION_REVOKED").Wrapf(ErrUnauthorized, "session is not active")
	}
	return claims, session, nil
}

// verifyCredentials runs the lookup, lock, status and secret checks shared by
// Login and ValidateUser. The returned string is the login metric result.
func (s *Service) verifyCredentials(ctx context.Context, email, secret string) (*Principal, string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		_, _ = s.hasher.Verify(secret, dummySecretDigest) //nolint:errcheck // timing only
		return nil, LoginInvalidCredentials, invalidCredentials()
	}

	principal, err := s.principals.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(secret, dummySecretDigest) //nolint:errcheck // timing only
			return nil, LoginInvalidCredentials, invalidCredentials()
		}
		return nil, LoginError, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}

	now := s.clock.Now()
	if decision := s.lockout.Evaluate(principal.FailedAttempts, principal.LockedUntil, now); !decision.Allowed {
		return nil, LoginLocked, decision.LockedError()
	}

	if principal.Status != StatusActive {
		return nil, LoginInactive, accountInactive()
	}

	ok, err := s.hasher.Verify(secret, principal.SecretDigest)
	if err != nil {
		return nil, LoginError, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify secret").
			Wrap(err)
	}
	if !ok {
		s.recordFailure(ctx, principal)
		return nil, LoginInvalidCredentials, invalidCredentials()
	}

	state := s.lockout.OnSuccess()
	if err := s.principals.UpdateLockout(ctx, principal.ID, state); err != nil {
		s.warnBestEffort(ctx, "record_success", principal.ID, err)
	}
	principal.FailedAttempts = state.FailedAttempts
	principal.LockedUntil = state.LockedUntil

	if s.hasher.NeedsUpgrade(principal.SecretDigest) {
		s.upgradeDigest(ctx, principal, secret)
	}

	return principal, LoginSuccess, nil
}

// recordFailure bumps the counter in storage and locks once the returned
// count reaches the threshold.
func (s *Service) recordFailure(ctx context.Context, principal *Principal) {
	attempts, err := s.principals.IncrementFailedAttempts(ctx, principal.ID)
	if err != nil {
		s.warnBestEffort(ctx, "record_failure", principal.ID, err)
		return
	}

	// The store already applied the increment; replay it through the policy
	// so the threshold check uses the count it returned. Only the lock is
	// written back: the counter belongs to the store.
	state := s.lockout.OnFailure(attempts-1, s.clock.Now())
	if state.LockedUntil == nil {
		return
	}
	if err := s.principals.SetLockedUntil(ctx, principal.ID, *state.LockedUntil); err != nil {
		s.warnBestEffort(ctx, "record_lockout", principal.ID, err)
		return
	}
	Lockouts.Inc()
	s.logger.InfoContext(ctx, "principal locked",
		"principal_id", principal.ID.String(),
		"failed_attempts", state.FailedAttempts,
		"locked_until", *state.LockedUntil,
	)
}

func (s *Service) upgradeDigest(ctx context.Context, principal *Principal, secret string) {
	digest, err := s.hasher.Hash(secret)
	if err != nil {
		s.warnBestEffort(ctx, "upgrade_secret", principal.ID, err)
		return
	}
	if err := s.principals.UpdateSecret(ctx, principal.ID, digest); err != nil {
		s.warnBestEffort(ctx, "upgrade_secret", principal.ID, err)
		return
	}
	principal.SecretDigest = digest
}

func (s *Service) revokeEverything(ctx context.Context, principalID ulid.ULID) error {
	if _, err := s.refresh.DeleteByPrincipal(ctx, principalID); err != nil {
		return oops.Code("AUTH_REVOKE_FAILED").
			With("operation", "delete refresh credentials").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	if _, err := s.sessions.RevokeAll(ctx, principalID, nil); err != nil {
		return oops.Code("AUTH_REVOKE_FAILED").
			With("operation", "revoke sessions").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

func (s *Service) warnBestEffort(ctx context.Context, operation string, principalID ulid.ULID, err error) {
	s.logger.WarnContext(ctx, "best-effort principal update failed",
		"operation", operation,
		"principal_id", principalID.String(),
		"error", err,
	)
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrapf(ErrUnauthorized, "invalid credentials")
}

func accountInactive() error {
	return oops.Code("AUTH_ACCOUNT_INACTIVE").Wrapf(ErrUnauthorized, "account is not active")
}

func refreshInvalid() error {
	return oops.Code("AUTH_REFRESH_INVALID").Wrapf(ErrUnauthorized, "invalid refresh token")
}

func emailTaken() error {
	return oops.Code("AUTH_EMAIL_TAKEN").Wrapf(ErrConflict, "email already registered")
}
