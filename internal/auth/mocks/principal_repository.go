// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// MockPrincipalRepository is a mock of auth.PrincipalRepository.
type MockPrincipalRepository struct {
	mock.Mock
}

// NewMockPrincipalRepository creates a mock and registers its assertions.
func NewMockPrincipalRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPrincipalRepository {
	m := &MockPrincipalRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPrincipalRepository) Create(ctx context.Context, principal *auth.Principal) error {
	return m.Called(ctx, principal).Error(0)
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	ret := m.Called(ctx, id)
	var r0 *auth.Principal
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Principal)
	}
	return r0, ret.Error(1)
}

func (m *MockPrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	ret := m.Called(ctx, email)
	var r0 *auth.Principal
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Principal)
	}
	return r0, ret.Error(1)
}

func (m *MockPrincipalRepository) UpdateSecret(ctx context.Context, id ulid.ULID, digest string) error {
	return m.Called(ctx, id, digest).Error(0)
}

func (m *MockPrincipalRepository) UpdateStatus(ctx context.Context, id ulid.ULID, status auth.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockPrincipalRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	ret := m.Called(ctx, id)
	return ret.Int(0), ret.Error(1)
}

func (m *MockPrincipalRepository) UpdateLockout(ctx context.Context, id ulid.ULID, state auth.LockoutState) error {
	return m.Called(ctx, id, state).Error(0)
}

func (m *MockPrincipalRepository) SetLockedUntil(ctx context.Context, id ulid.ULID, until time.Time) error {
	return m.Called(ctx, id, until).Error(0)
}

func (m *MockPrincipalRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time, ip *string) error {
	return m.Called(ctx, id, at, ip).Error(0)
}

var _ auth.PrincipalRepository = (*MockPrincipalRepository)(nil)
