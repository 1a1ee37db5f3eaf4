// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// MockSecretHasher is a mock of auth.SecretHasher.
type MockSecretHasher struct {
	mock.Mock
}

// NewMockSecretHasher creates a mock and registers its assertions.
func NewMockSecretHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSecretHasher {
	m := &MockSecretHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSecretHasher) Hash(secret string) (string, error) {
	ret := m.Called(secret)
	return ret.String(0), ret.Error(1)
}

func (m *MockSecretHasher) Verify(secret, digest string) (bool, error) {
	ret := m.Called(secret, digest)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockSecretHasher) NeedsUpgrade(digest string) bool {
	return m.Called(digest).Bool(0)
}

var _ auth.SecretHasher = (*MockSecretHasher)(nil)
