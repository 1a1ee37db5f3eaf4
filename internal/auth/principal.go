// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Status is the lifecycle state of a principal.
type Status string

// Principal statuses.
const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

// DefaultRole is assigned to principals at registration.
const DefaultRole = "user"

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 254

// Principal represents an authenticable account.
type Principal struct {
	ID             ulid.ULID
	Email          string
	DisplayName    string
	Role           string
	SecretDigest   string
	Status         Status
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	LastLoginIP    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile carries the optional fields supplied at registration.
type Profile struct {
	DisplayName string
}

// NewPrincipal creates a validated PENDING principal.
// The email is normalized to lower case.
func NewPrincipal(email, secretDigest string, profile Profile, now time.Time) (*Principal, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if secretDigest == "" {
		return nil, oops.Code("PRINCIPAL_INVALID_DIGEST").Errorf("secret digest cannot be empty")
	}
	return &Principal{
		ID:           ulid.Make(),
		Email:        normalized,
		DisplayName:  strings.TrimSpace(profile.DisplayName),
		Role:         DefaultRole,
		SecretDigest: secretDigest,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims and lower-cases an email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", oops.Code("PRINCIPAL_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(normalized) > MaxEmailLength {
		return "", oops.Code("PRINCIPAL_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", oops.Code("PRINCIPAL_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	return normalized, nil
}

// Sanitized returns a copy of the principal without the secret digest.
func (p *Principal) Sanitized() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.SecretDigest = ""
	return &cp
}

// PrincipalRepository manages principal persistence.
type PrincipalRepository interface {
	// Create stores a new principal.
	// Returns an error wrapping ErrConflict if the email is taken.
	Create(ctx context.Context, principal *Principal) error

	// GetByID retrieves a principal by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// UpdateSecret replaces the secret digest.
	UpdateSecret(ctx context.Context, id ulid.ULID, digest string) error

	// UpdateStatus changes the principal status.
	UpdateStatus(ctx context.Context, id ulid.ULID, status Status) error

	// IncrementFailedAttempts atomically adds one to the failure counter
	// and returns the post-increment value.
	IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// UpdateLockout writes the failure counter and lock timestamp.
	// It is used for the reset after a successful verification.
	UpdateLockout(ctx context.Context, id ulid.ULID, state LockoutState) error

	// SetLockedUntil extends the lock to until without touching the
	// failure counter. An existing later lock is kept.
	SetLockedUntil(ctx context.Context, id ulid.ULID, until time.Time) error

	// RecordLogin stamps the last successful login.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time, ip *string) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
