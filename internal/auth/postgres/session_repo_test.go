// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
)

var sessionColumnNames = []string{
	"id", "principal_id", "access_token_fingerprint", "ip_address", "user_agent",
	"is_active", "created_at", "expires_at",
}

func TestSessionRepository_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ip := "192.0.2.1"
	s := &auth.Session{
		ID:                     ulid.Make(),
		PrincipalID:            ulid.Make(),
		AccessTokenFingerprint: "fp",
		IPAddress:              &ip,
		IsActive:               true,
		CreatedAt:              now,
		ExpiresAt:              now.Add(time.Hour),
	}

	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID.String(), s.PrincipalID.String(), "fp", pgxmock.AnyArg(), pgxmock.AnyArg(), true, now, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewSessionRepository(mock).Create(context.Background(), s))
}

func TestSessionRepository_FindLiveByFingerprint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, pid := ulid.Make(), ulid.Make()
	ua := "curl/8.5"

	t.Run("returns newest live row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE access_token_fingerprint = \$1 AND is_active AND expires_at > \$2`).
			WithArgs("fp", now).
			WillReturnRows(pgxmock.NewRows(sessionColumnNames).
				AddRow(id.String(), pid.String(), "fp", (*string)(nil), &ua, true, now, now.Add(time.Hour)))

		s, err := NewSessionRepository(mock).FindLiveByFingerprint(context.Background(), "fp", now)
		require.NoError(t, err)
		assert.Equal(t, id, s.ID)
		assert.Nil(t, s.IPAddress)
		require.NotNil(t, s.UserAgent)
		assert.Equal(t, ua, *s.UserAgent)
		assert.True(t, s.IsActive)
	})

	t.Run("no live row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE access_token_fingerprint = \$1`).
			WithArgs("fp", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewSessionRepository(mock).FindLiveByFingerprint(context.Background(), "fp", now)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	id := ulid.Make()
	mock.ExpectQuery(`FROM sessions WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnError(pgx.ErrNoRows)

	_, err := NewSessionRepository(mock).GetByID(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.Equal(t, "SESSION_NOT_FOUND", errorCode(err))
}

func TestSessionRepository_ListLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pid := ulid.Make()
	newer, older := ulid.Make(), ulid.Make()

	t.Run("returns rows in query order", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`ORDER BY created_at DESC, id DESC`).
			WithArgs(pid.String(), now).
			WillReturnRows(pgxmock.NewRows(sessionColumnNames).
				AddRow(newer.String(), pid.String(), "fp2", (*string)(nil), (*string)(nil), true, now, now.Add(time.Hour)).
				AddRow(older.String(), pid.String(), "fp1", (*string)(nil), (*string)(nil), true, now.Add(-time.Minute), now.Add(time.Hour)))

		sessions, err := NewSessionRepository(mock).ListLive(context.Background(), pid, now)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, newer, sessions[0].ID)
		assert.Equal(t, older, sessions[1].ID)
	})

	t.Run("empty result is a non-nil slice", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).
			WithArgs(pid.String(), now).
			WillReturnRows(pgxmock.NewRows(sessionColumnNames))

		sessions, err := NewSessionRepository(mock).ListLive(context.Background(), pid, now)
		require.NoError(t, err)
		assert.NotNil(t, sessions)
		assert.Empty(t, sessions)
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).
			WithArgs(pid.String(), now).
			WillReturnError(errors.New("connection refused"))

		_, err := NewSessionRepository(mock).ListLive(context.Background(), pid, now)
		require.Error(t, err)
		assert.Equal(t, "SESSION_QUERY_FAILED", errorCode(err))
	})
}

func TestSessionRepository_CountLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pid := ulid.Make()

	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions`).
		WithArgs(pid.String(), now).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := NewSessionRepository(mock).CountLive(context.Background(), pid, now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSessionRepository_CountAllLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("counts", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE is_active AND expires_at > \$1`).
			WithArgs(now).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

		n, err := NewSessionRepository(mock).CountAllLive(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, int64(12), n)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(now).
			WillReturnError(errors.New("connection refused"))

		_, err := NewSessionRepository(mock).CountAllLive(context.Background(), now)
		require.Error(t, err)
		assert.Equal(t, "SESSION_COUNT_FAILED", errorCode(err))
	})
}

func TestSessionRepository_Deactivate(t *testing.T) {
	id := ulid.Make()

	t.Run("deactivates", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET is_active = false WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewSessionRepository(mock).Deactivate(context.Background(), id))
	})

	t.Run("missing row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET is_active = false WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewSessionRepository(mock).Deactivate(context.Background(), id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_DeactivateByPrincipal(t *testing.T) {
	pid := ulid.Make()
	keep := ulid.Make()
	keepStr := keep.String()

	t.Run("without exception", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET is_active = false\s+WHERE principal_id = \$1 AND is_active`).
			WithArgs(pid.String(), (*string)(nil)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		n, err := NewSessionRepository(mock).DeactivateByPrincipal(context.Background(), pid, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("keeps the excepted session", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`id <> \$2`).
			WithArgs(pid.String(), &keepStr).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))

		n, err := NewSessionRepository(mock).DeactivateByPrincipal(context.Background(), pid, &keep)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestSessionRepository_DeactivateByFingerprint(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`WHERE access_token_fingerprint = \$1 AND is_active`).
		WithArgs("fp").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := NewSessionRepository(mock).DeactivateByFingerprint(context.Background(), "fp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionRepository_DeleteStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("deletes inactive and expired rows", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE NOT is_active OR expires_at < \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 5))

		n, err := NewSessionRepository(mock).DeleteStale(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions`).
			WithArgs(now).
			WillReturnError(errors.New("lock timeout"))

		_, err := NewSessionRepository(mock).DeleteStale(context.Background(), now)
		require.Error(t, err)
		assert.Equal(t, "SESSION_DELETE_STALE_FAILED", errorCode(err))
	})
}
