// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package authtest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// PrincipalRepository is an in-memory auth.PrincipalRepository.
type PrincipalRepository struct {
	mu   sync.Mutex
	byID map[ulid.ULID]*auth.Principal
}

// NewPrincipalRepository returns an empty repository.
func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{byID: make(map[ulid.ULID]*auth.Principal)}
}

func (r *PrincipalRepository) Create(_ context.Context, p *auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, p.Email) {
			return oops.Code("PRINCIPAL_EMAIL_EXISTS").With("email", p.Email).Wrap(auth.ErrConflict)
		}
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *PrincipalRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *PrincipalRepository) GetByEmail(_ context.Context, email string) (*auth.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func (r *PrincipalRepository) UpdateSecret(_ context.Context, id ulid.ULID, digest string) error {
	return r.mutate(id, func(p *auth.Principal) { p.SecretDigest = digest })
}

func (r *PrincipalRepository) UpdateStatus(_ context.Context, id ulid.ULID, status auth.Status) error {
	return r.mutate(id, func(p *auth.Principal) { p.Status = status })
}

func (r *PrincipalRepository) IncrementFailedAttempts(_ context.Context, id ulid.ULID) (int, error) {
	var n int
	err := r.mutate(id, func(p *auth.Principal) {
		p.FailedAttempts++
		n = p.FailedAttempts
	})
	return n, err
}

func (r *PrincipalRepository) UpdateLockout(_ context.Context, id ulid.ULID, state auth.LockoutState) error {
	return r.mutate(id, func(p *auth.Principal) {
		p.FailedAttempts = state.FailedAttempts
		p.LockedUntil = state.LockedUntil
	})
}

func (r *PrincipalRepository) SetLockedUntil(_ context.Context, id ulid.ULID, until time.Time) error {
	return r.mutate(id, func(p *auth.Principal) {
		if p.LockedUntil == nil || until.After(*p.LockedUntil) {
			p.LockedUntil = &until
		}
	})
}

func (r *PrincipalRepository) RecordLogin(_ context.Context, id ulid.ULID, at time.Time, ip *string) error {
	return r.mutate(id, func(p *auth.Principal) {
		p.LastLoginAt = &at
		p.LastLoginIP = ip
	})
}

// Put stores p as-is, replacing any principal with the same ID.
func (r *PrincipalRepository) Put(p *auth.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
}

func (r *PrincipalRepository) mutate(id ulid.ULID, fn func(*auth.Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return oops.Code("PRINCIPAL_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(p)
	return nil
}

// RefreshCredentialRepository is an in-memory auth.RefreshCredentialRepository.
type RefreshCredentialRepository struct {
	mu   sync.Mutex
	byID map[ulid.ULID]*auth.RefreshCredential
}

// NewRefreshCredentialRepository returns an empty repository.
func NewRefreshCredentialRepository() *RefreshCredentialRepository {
	return &RefreshCredentialRepository{byID: make(map[ulid.ULID]*auth.RefreshCredential)}
}

func (r *RefreshCredentialRepository) Create(_ context.Context, cred *auth.RefreshCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cred
	r.byID[cred.ID] = &cp
	return nil
}

func (r *RefreshCredentialRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.TokenHash == tokenHash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func (r *RefreshCredentialRepository) DeleteByID(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return oops.Code("REFRESH_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *RefreshCredentialRepository) DeleteByTokenHash(_ context.Context, principalID ulid.ULID, tokenHash string) (int64, error) {
	return r.deleteWhere(func(c *auth.RefreshCredential) bool {
		return c.PrincipalID == principalID && c.TokenHash == tokenHash
	}), nil
}

func (r *RefreshCredentialRepository) DeleteByPrincipal(_ context.Context, principalID ulid.ULID) (int64, error) {
	return r.deleteWhere(func(c *auth.RefreshCredential) bool {
		return c.PrincipalID == principalID
	}), nil
}

func (r *RefreshCredentialRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(c *auth.RefreshCredential) bool {
		return c.ExpiresAt.Before(before)
	}), nil
}

// Len returns the number of stored credentials.
func (r *RefreshCredentialRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *RefreshCredentialRepository) deleteWhere(match func(*auth.RefreshCredential) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.byID {
		if match(c) {
			delete(r.byID, id)
			n++
		}
	}
	return n
}

// SessionRepository is an in-memory auth.SessionRepository.
type SessionRepository struct {
	mu   sync.Mutex
	byID map[ulid.ULID]*auth.Session
}

// NewSessionRepository returns an empty repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{byID: make(map[ulid.ULID]*auth.Session)}
}

func (r *SessionRepository) Create(_ context.Context, s *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) FindLiveByFingerprint(_ context.Context, fingerprint string, now time.Time) (*auth.Session, error) {
	live := r.selectLive(now, func(s *auth.Session) bool { return s.AccessTokenFingerprint == fingerprint })
	if len(live) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return live[0], nil
}

func (r *SessionRepository) ListLive(_ context.Context, principalID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	return r.selectLive(now, func(s *auth.Session) bool { return s.PrincipalID == principalID }), nil
}

func (r *SessionRepository) CountLive(_ context.Context, principalID ulid.ULID, now time.Time) (int, error) {
	return len(r.selectLive(now, func(s *auth.Session) bool { return s.PrincipalID == principalID })), nil
}

func (r *SessionRepository) Deactivate(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	s.IsActive = false
	return nil
}

func (r *SessionRepository) DeactivateByPrincipal(_ context.Context, principalID ulid.ULID, except *ulid.ULID) (int64, error) {
	return r.deactivateWhere(func(s *auth.Session) bool {
		return s.PrincipalID == principalID && (except == nil || s.ID != *except)
	}), nil
}

func (r *SessionRepository) DeactivateByFingerprint(_ context.Context, fingerprint string) (int64, error) {
	return r.deactivateWhere(func(s *auth.Session) bool {
		return s.AccessTokenFingerprint == fingerprint
	}), nil
}

func (r *SessionRepository) DeleteStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !s.IsActive || s.ExpiresAt.Before(now) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, live or not.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *SessionRepository) selectLive(now time.Time, match func(*auth.Session) bool) []*auth.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*auth.Session{}
	for _, s := range r.byID {
		if s.IsLiveAt(now) && match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *auth.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return out
}

func (r *SessionRepository) deactivateWhere(match func(*auth.Session) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.IsActive && match(s) {
			s.IsActive = false
			n++
		}
	}
	return n
}

var (
	_ auth.PrincipalRepository         = (*PrincipalRepository)(nil)
	_ auth.RefreshCredentialRepository = (*RefreshCredentialRepository)(nil)
	_ auth.SessionRepository           = (*SessionRepository)(nil)
)
