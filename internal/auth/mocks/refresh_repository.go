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

// MockRefreshCredentialRepository is a mock of auth.RefreshCredentialRepository.
type MockRefreshCredentialRepository struct {
	mock.Mock
}

// NewMockRefreshCredentialRepository creates a mock and registers its assertions.
func NewMockRefreshCredentialRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockRefreshCredentialRepository {
	m := &MockRefreshCredentialRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRefreshCredentialRepository) Create(ctx context.Context, cred *auth.RefreshCredential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *MockRefreshCredentialRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshCredential, error) {
	ret := m.Called(ctx, tokenHash)
	var r0 *auth.RefreshCredential
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.RefreshCredential)
	}
	return r0, ret.Error(1)
}

func (m *MockRefreshCredentialRepository) DeleteByID(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRefreshCredentialRepository) DeleteByTokenHash(ctx context.Context, principalID ulid.ULID, tokenHash string) (int64, error) {
	ret := m.Called(ctx, principalID, tokenHash)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRefreshCredentialRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error) {
	ret := m.Called(ctx, principalID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRefreshCredentialRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return ret.Get(0).(int64), ret.Error(1)
}

var _ auth.RefreshCredentialRepository = (*MockRefreshCredentialRepository)(nil)
