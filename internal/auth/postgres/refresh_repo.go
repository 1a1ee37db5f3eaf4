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

// RefreshCredentialRepository implements auth.RefreshCredentialRepository using PostgreSQL.
type RefreshCredentialRepository struct {
	db DB
}

// NewRefreshCredentialRepository creates a new RefreshCredentialRepository.
func NewRefreshCredentialRepository(db DB) *RefreshCredentialRepository {
	return &RefreshCredentialRepository{db: db}
}

// Create stores a new refresh credential.
func (r *RefreshCredentialRepository) Create(ctx context.Context, cred *auth.RefreshCredential) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_credentials (id, principal_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		cred.ID.String(),
		cred.PrincipalID.String(),
		cred.TokenHash,
		cred.IssuedAt,
		cred.ExpiresAt,
	)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh credential").
			With("principal_id", cred.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a credential by token hash.
func (r *RefreshCredentialRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshCredential, error) {
	var (
		idStr, principalIDStr, hash string
		issuedAt, expiresAt         time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, principal_id, token_hash, issued_at, expires_at
		FROM refresh_credentials
		WHERE token_hash = $1
	`, tokenHash).Scan(&idStr, &principalIDStr, &hash, &issuedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_FAILED").
			With("operation", "get refresh credential by hash").
			Wrap(err)
	}

	id, err := parseULID("REFRESH_INVALID_ID", "id", idStr)
	if err != nil {
		return nil, err
	}
	principalID, err := parseULID("REFRESH_INVALID_PRINCIPAL_ID", "principal_id", principalIDStr)
	if err != nil {
		return nil, err
	}
	return &auth.RefreshCredential{
		ID:          id,
		PrincipalID: principalID,
		TokenHash:   hash,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// DeleteByID removes a credential. The zero-row case is how concurrent
// refreshes of one token are told apart.
func (r *RefreshCredentialRepository) DeleteByID(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_credentials WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("REFRESH_DELETE_FAILED").
			With("operation", "delete refresh credential").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByTokenHash removes rows matching the principal and hash.
func (r *RefreshCredentialRepository) DeleteByTokenHash(ctx context.Context, principalID ulid.ULID, tokenHash string) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM refresh_credentials WHERE principal_id = $1 AND token_hash = $2
	`, principalID.String(), tokenHash)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_FAILED").
			With("operation", "delete refresh credential by hash").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	// No ErrNotFound if no rows deleted - logout is idempotent
	return result.RowsAffected(), nil
}

// DeleteByPrincipal removes every credential of a principal.
func (r *RefreshCredentialRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_credentials WHERE principal_id = $1`, principalID.String())
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_FAILED").
			With("operation", "delete refresh credentials by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes credentials whose expiry is strictly before the given time.
func (r *RefreshCredentialRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_credentials WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh credentials").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.RefreshCredentialRepository = (*RefreshCredentialRepository)(nil)
