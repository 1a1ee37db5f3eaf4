// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package auth implements credential verification, token issuance and the
// session lifecycle for Warden.
//
// # Domain Types
//
// Domain types (Principal, RefreshCredential, Session) should be created
// using their respective constructors:
//   - NewPrincipal - creates a PENDING Principal with a normalized email
//   - NewRefreshCredential - creates a RefreshCredential with a validated expiry
//   - NewSession - creates an active Session bound to an access token fingerprint
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// Tokens are never stored. Refresh credentials and sessions hold the SHA256
// fingerprint computed by HashToken.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, refresh rotation, logout, secret changes
//   - SessionRegistry - per-principal session listing and revocation
//   - TokenIssuer - access/refresh pair minting
//   - Sweeper - periodic deletion of expired sessions and refresh credentials
//
// LockoutPolicy is a pure decision function; Service persists its results
// through PrincipalRepository.IncrementFailedAttempts and SetLockedUntil.
// The counter only ever moves by the atomic increment or the success reset,
// so concurrent failures are never under-counted.
//
// Errors wrap ErrUnauthorized, ErrConflict or ErrNotFound; use KindOf to
// classify them.
package auth
