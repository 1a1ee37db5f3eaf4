// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshCredential is the stored half of an outstanding refresh token.
type RefreshCredential struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// NewRefreshCredential creates a validated RefreshCredential.
func NewRefreshCredential(principalID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time) (*RefreshCredential, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(issuedAt) {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry must be after issue time")
	}
	return &RefreshCredential{
		ID:          ulid.Make(),
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// IsExpiredAt returns true if the credential is expired at t.
func (c *RefreshCredential) IsExpiredAt(t time.Time) bool {
	return !c.ExpiresAt.After(t)
}

// RefreshCredentialRepository manages refresh credential persistence.
type RefreshCredentialRepository interface {
	// Create stores a new refresh credential.
	Create(ctx context.Context, cred *RefreshCredential) error

	// GetByTokenHash retrieves a credential by token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshCredential, error)

	// DeleteByID removes a credential. Returns ErrNotFound if no row was deleted.
	DeleteByID(ctx context.Context, id ulid.ULID) error

	// DeleteByTokenHash removes rows matching (tokenHash, principalID).
	DeleteByTokenHash(ctx context.Context, principalID ulid.ULID, tokenHash string) (int64, error)

	// DeleteByPrincipal removes every credential of a principal.
	DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error)

	// DeleteExpired removes credentials expiring before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
