// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session is one successful login, revocable independently of its token.
// IsActive=false is terminal.
type Session struct {
	ID                     ulid.ULID
	PrincipalID            ulid.ULID
	AccessTokenFingerprint string
	IPAddress              *string
	UserAgent              *string
	IsActive               bool
	CreatedAt              time.Time
	ExpiresAt              time.Time
}

// NewSession creates a validated, active Session.
// IPAddress and UserAgent are optional and may be nil.
func NewSession(principalID ulid.ULID, fingerprint string, ipAddress, userAgent *string, createdAt, expiresAt time.Time) (*Session, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if fingerprint == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token fingerprint cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &Session{
		ID:                     ulid.Make(),
		PrincipalID:            principalID,
		AccessTokenFingerprint: fingerprint,
		IPAddress:              ipAddress,
		UserAgent:              userAgent,
		IsActive:               true,
		CreatedAt:              createdAt,
		ExpiresAt:              expiresAt,
	}, nil
}

// IsLiveAt reports whether the session is active and unexpired at t.
func (s *Session) IsLiveAt(t time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(t)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by ID regardless of state.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// FindLiveByFingerprint returns the newest live session with the fingerprint.
	// Returns ErrNotFound if none is live at now.
	FindLiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (*Session, error)

	// ListLive returns the principal's live sessions, newest first.
	ListLive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*Session, error)

	// CountLive counts the principal's live sessions.
	CountLive(ctx context.Context, principalID ulid.ULID, now time.Time) (int, error)

	// Deactivate sets is_active=false. Returns ErrNotFound if the row is missing.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// DeactivateByPrincipal deactivates the principal's active sessions,
	// skipping except when non-nil, and returns the number affected.
	DeactivateByPrincipal(ctx context.Context, principalID ulid.ULID, except *ulid.ULID) (int64, error)

	// DeactivateByFingerprint deactivates every row with the fingerprint.
	DeactivateByFingerprint(ctx context.Context, fingerprint string) (int64, error)

	// DeleteStale removes rows that expired before now or are inactive.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}
