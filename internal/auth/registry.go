// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionRegistry tracks every login session and enforces ownership on
// per-session operations.
type SessionRegistry struct {
	repo  SessionRepository
	clock Clock
}

// NewSessionRegistry creates a SessionRegistry. A nil clock uses the system clock.
func NewSessionRegistry(repo SessionRepository, clock Clock) (*SessionRegistry, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_REGISTRY_INVALID").Errorf("sessions repository is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SessionRegistry{repo: repo, clock: clock}, nil
}

// Create records a new active session for accessToken.
func (r *SessionRegistry) Create(ctx context.Context, principalID ulid.ULID, accessToken string, expiresAt time.Time, ip, userAgent *string) (*Session, error) {
	session, err := NewSession(principalID, HashToken(accessToken), ip, userAgent, r.clock.Now(), expiresAt)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "build session").Wrap(err)
	}
	if err := r.repo.Create(ctx, session); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return session, nil
}

// ListActive returns the principal's live sessions, newest first.
func (r *SessionRegistry) ListActive(ctx context.Context, principalID ulid.ULID) ([]*Session, error) {
	sessions, err := r.repo.ListLive(ctx, principalID, r.clock.Now())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	return sessions, nil
}

// Count returns the number of live sessions for the principal.
func (r *SessionRegistry) Count(ctx context.Context, principalID ulid.ULID) (int, error) {
	n, err := r.repo.CountLive(ctx, principalID, r.clock.Now())
	if err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return n, nil
}

// Get returns a session owned by principalID.
// A missing session and one owned by someone else are indistinguishable.
func (r *SessionRegistry) Get(ctx context.Context, sessionID, principalID ulid.ULID) (*Session, error) {
	session, err := r.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, sessionNotFound(sessionID)
		}
		return nil, oops.Code("SESSION_GET_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	if session.PrincipalID != principalID {
		return nil, sessionNotFound(sessionID)
	}
	return session, nil
}

// Revoke deactivates one owned session. Revoking an inactive session is a no-op.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, principalID ulid.ULID) error {
	session, err := r.Get(ctx, sessionID, principalID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return nil
	}
	if err := r.repo.Deactivate(ctx, sessionID); err != nil {
		// Swept between the read and the write: both paths end with the row gone.
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	sessionsRevoked.WithLabelValues(revokeModeSingle).Inc()
	return nil
}

// RevokeAll deactivates every active session of the principal except the
// optional one, returning how many were affected.
func (r *SessionRegistry) RevokeAll(ctx context.Context, principalID ulid.ULID, except *ulid.ULID) (int64, error) {
	n, err := r.repo.DeactivateByPrincipal(ctx, principalID, except)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	sessionsRevoked.WithLabelValues(revokeModeBulk).Add(float64(n))
	return n, nil
}

// RevokeByToken deactivates every session created for accessToken.
func (r *SessionRegistry) RevokeByToken(ctx context.Context, accessToken string) (int64, error) {
	n, err := r.repo.DeactivateByFingerprint(ctx, HashToken(accessToken))
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_BY_TOKEN_FAILED").Wrap(err)
	}
	sessionsRevoked.WithLabelValues(revokeModeToken).Add(float64(n))
	return n, nil
}

// Validate returns the live session for accessToken, or nil if there is none.
func (r *SessionRegistry) Validate(ctx context.Context, accessToken string) (*Session, error) {
	session, err := r.repo.FindLiveByFingerprint(ctx, HashToken(accessToken), r.clock.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").Wrap(err)
	}
	return session, nil
}

// SweepExpired hard-deletes expired and inactive sessions.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteStale(ctx, r.clock.Now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

func sessionNotFound(sessionID ulid.ULID) error {
	return oops.Code("SESSION_NOT_FOUND").
		With("session_id", sessionID.String()).
		Wrapf(ErrNotFound, "session not found")
}
