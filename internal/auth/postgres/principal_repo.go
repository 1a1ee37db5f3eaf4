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

const principalColumns = `id, email, display_name, role, secret_digest, status,
	       failed_attempts, locked_until, last_login_at, last_login_ip,
	       created_at, updated_at`

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	db DB
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(db DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create stores a new principal.
func (r *PrincipalRepository) Create(ctx context.Context, p *auth.Principal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO principals (
			id, email, display_name, role, secret_digest, status,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.ID.String(),
		p.Email,
		p.DisplayName,
		p.Role,
		p.SecretDigest,
		string(p.Status),
		p.FailedAttempts,
		p.LockedUntil,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("PRINCIPAL_EMAIL_EXISTS").
				With("id", p.ID.String()).
				Wrap(errors.Join(err, auth.ErrConflict))
		}
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("id", p.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id.String())

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return p, nil
}

// GetByEmail retrieves a principal by email (case-insensitive).
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE LOWER(email) = LOWER($1)`, email)

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_EMAIL_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}
	return p, nil
}

// UpdateSecret replaces the secret digest.
func (r *PrincipalRepository) UpdateSecret(ctx context.Context, id ulid.ULID, digest string) error {
	return r.execOne(ctx, "PRINCIPAL_UPDATE_SECRET_FAILED", id, `
		UPDATE principals SET secret_digest = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), digest)
}

// UpdateStatus changes the principal status.
func (r *PrincipalRepository) UpdateStatus(ctx context.Context, id ulid.ULID, status auth.Status) error {
	return r.execOne(ctx, "PRINCIPAL_UPDATE_STATUS_FAILED", id, `
		UPDATE principals SET status = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), string(status))
}

// IncrementFailedAttempts adds one to the counter in a single statement so
// concurrent failures are all counted.
func (r *PrincipalRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE principals SET failed_attempts = failed_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("PRINCIPAL_INCREMENT_FAILED").
			With("operation", "increment failed attempts").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, nil
}

// UpdateLockout writes the failure counter and lock timestamp.
func (r *PrincipalRepository) UpdateLockout(ctx context.Context, id ulid.ULID, state auth.LockoutState) error {
	return r.execOne(ctx, "PRINCIPAL_UPDATE_LOCKOUT_FAILED", id, `
		UPDATE principals SET failed_attempts = $2, locked_until = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), state.FailedAttempts, state.LockedUntil)
}

// SetLockedUntil writes only the lock timestamp. GREATEST skips a NULL
// locked_until and never shortens a later lock from a concurrent failure.
func (r *PrincipalRepository) SetLockedUntil(ctx context.Context, id ulid.ULID, until time.Time) error {
	return r.execOne(ctx, "PRINCIPAL_SET_LOCKED_UNTIL_FAILED", id, `
		UPDATE principals SET locked_until = GREATEST(locked_until, $2), updated_at = now()
		WHERE id = $1
	`, id.String(), until)
}

// RecordLogin stamps the last successful login.
func (r *PrincipalRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time, ip *string) error {
	return r.execOne(ctx, "PRINCIPAL_RECORD_LOGIN_FAILED", id, `
		UPDATE principals SET last_login_at = $2, last_login_ip = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), at, ip)
}

// execOne runs an update that must touch exactly the principal row.
func (r *PrincipalRepository) execOne(ctx context.Context, code string, id ulid.ULID, sql string, args ...any) error {
	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code(code).With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanPrincipal scans a single row into a Principal.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	var (
		idStr          string
		email          string
		displayName    string
		role           string
		secretDigest   string
		status         string
		failedAttempts int
		lockedUntil    *time.Time
		lastLoginAt    *time.Time
		lastLoginIP    *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&displayName,
		&role,
		&secretDigest,
		&status,
		&failedAttempts,
		&lockedUntil,
		&lastLoginAt,
		&lastLoginIP,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
			With("operation", "scan principal").
			Wrap(err)
	}

	id, err := parseULID("PRINCIPAL_INVALID_ID", "id", idStr)
	if err != nil {
		return nil, err
	}

	return &auth.Principal{
		ID:             id,
		Email:          email,
		DisplayName:    displayName,
		Role:           role,
		SecretDigest:   secretDigest,
		Status:         auth.Status(status),
		FailedAttempts: failedAttempts,
		LockedUntil:    lockedUntil,
		LastLoginAt:    lastLoginAt,
		LastLoginIP:    lastLoginIP,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.PrincipalRepository = (*PrincipalRepository)(nil)
