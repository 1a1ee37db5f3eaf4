// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized is wrapped by every credential, lockout, account-state and
// token failure.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConflict is wrapped when a unique attribute (the email) is already taken.
var ErrConflict = errors.New("conflict")

// Kind classifies an error for the transport layer.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindUnauthorized
	KindConflict
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// KindOf reports which error kind err belongs to.
// Errors that wrap none of the sentinels are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
