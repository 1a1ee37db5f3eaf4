// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

const sessionColumns = `id, principal_id, access_token_fingerprint, ip_address, user_agent,
	       is_active, created_at, expires_at`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, principal_id, access_token_fingerprint, ip_address, user_agent, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		s.ID.String(),
		s.PrincipalID.String(),
		s.AccessTokenFingerprint,
		s.IPAddress,
		s.UserAgent,
		s.IsActive,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("principal_id", s.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID regardless of state.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// FindLiveByFingerprint returns the newest live session for the fingerprint.
func (r *SessionRepository) FindLiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE access_token_fingerprint = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, fingerprint, now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "find live session by fingerprint").
			Wrap(err)
	}
	return session, nil
}

// ListLive returns the principal's live sessions, newest first.
func (r *SessionRepository) ListLive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE principal_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, principalID.String(), now)
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").
			With("operation", "list live sessions").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	defer rows.Close()

	sessions := []*auth.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ITERATE_FAILED").
			With("operation", "iterate session rows").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return sessions, nil
}

// CountLive counts the principal's live sessions.
func (r *SessionRepository) CountLive(ctx context.Context, principalID ulid.ULID, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE principal_id = $1 AND is_active AND expires_at > $2
	`, principalID.String(), now).Scan(&n)
	if err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return n, nil
}

// CountAllLive counts live sessions across every principal.
func (r *SessionRepository) CountAllLive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE is_active AND expires_at > $1
	`, now).Scan(&n)
	if err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").
			With("operation", "count all live sessions").
			Wrap(err)
	}
	return n, nil
}

// Deactivate marks one session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = false WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeactivateByPrincipal deactivates the principal's active sessions, skipping
// except when it is non-nil.
func (r *SessionRepository) DeactivateByPrincipal(ctx context.Context, principalID ulid.ULID, except *ulid.ULID) (int64, error) {
	var exceptID *string
	if except != nil {
		s := except.String()
		exceptID = &s
	}

	result, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = false
		WHERE principal_id = $1 AND is_active AND ($2::text IS NULL OR id <> $2)
	`, principalID.String(), exceptID)
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate sessions by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeactivateByFingerprint deactivates every active session for the fingerprint.
func (r *SessionRepository) DeactivateByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = false
		WHERE access_token_fingerprint = $1 AND is_active
	`, fingerprint)
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate sessions by fingerprint").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteStale removes inactive sessions and those that expired before now.
func (r *SessionRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM sessions WHERE NOT is_active OR expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_STALE_FAILED").
			With("operation", "delete stale sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr          string
		principalIDStr string
		fingerprint    string
		ipAddress      *string
		userAgent      *string
		isActive       bool
		createdAt      time.Time
		expiresAt      time.Time
	)

	err := row.Scan(&idStr, &principalIDStr, &fingerprint, &ipAddress, &userAgent, &isActive, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	id, err := parseULID("SESSION_INVALID_ID", "id", idStr)
	if err != nil {
		return nil, err
	}
	principalID, err := parseULID("SESSION_INVALID_PRINCIPAL_ID", "principal_id", principalIDStr)
	if err != nil {
		return nil, err
	}

	return &auth.Session{
		ID:                     id,
		PrincipalID:            principalID,
		AccessTokenFingerprint: fingerprint,
		IPAddress:              ipAddress,
		UserAgent:              userAgent,
		IsActive:               isActive,
		CreatedAt:              createdAt,
		ExpiresAt:              expiresAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
