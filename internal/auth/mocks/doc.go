// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package mocks provides testify mocks for the auth interfaces.
//
// Each constructor registers an expectation assertion with t.Cleanup, so
// tests fail when an expected call never happens.
package mocks
