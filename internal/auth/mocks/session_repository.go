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

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a mock and registers its assertions.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	ret := m.Called(ctx, id)
	var r0 *auth.Session
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Session)
	}
	return r0, ret.Error(1)
}

func (m *MockSessionRepository) FindLiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (*auth.Session, error) {
	ret := m.Called(ctx, fingerprint, now)
	var r0 *auth.Session
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Session)
	}
	return r0, ret.Error(1)
}

func (m *MockSessionRepository) ListLive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	ret := m.Called(ctx, principalID, now)
	var r0 []*auth.Session
	if v := ret.Get(0); v != nil {
		r0 = v.([]*auth.Session)
	}
	return r0, ret.Error(1)
}

func (m *MockSessionRepository) CountLive(ctx context.Context, principalID ulid.ULID, now time.Time) (int, error) {
	ret := m.Called(ctx, principalID, now)
	return ret.Int(0), ret.Error(1)
}

func (m *MockSessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionRepository) DeactivateByPrincipal(ctx context.Context, principalID ulid.ULID, except *ulid.ULID) (int64, error) {
	ret := m.Called(ctx, principalID, except)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockSessionRepository) DeactivateByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	ret := m.Called(ctx, fingerprint)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockSessionRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	return ret.Get(0).(int64), ret.Error(1)
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)
