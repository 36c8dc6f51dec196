package ratelimit

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const countQuery = "SELECT COUNT(*), MIN(attempted_at)"

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, sqlmock.Sqlmock, time.Time) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	l := NewLimiter(db, cfg, zap.NewNop())
	l.now = func() time.Time { return now }
	return l, mock, now
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "email:coach@example.com", EmailKey("  Coach@Example.com "))
	assert.Equal(t, "ip:203.0.113.7", IPKey("203.0.113.7"))
}

func TestLimiter_Check(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Window: 15 * time.Minute}

	t.Run("under the limit", func(t *testing.T) {
		l, mock, now := newTestLimiter(t, cfg)
		start := now.Add(-15 * time.Minute)

		mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
			WithArgs("email:coach@example.com", start).
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(1, now.Add(-time.Minute)))
		mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
			WithArgs("ip:203.0.113.7", start).
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(0, nil))

		result, err := l.Check(context.Background(), "email:coach@example.com", "ip:203.0.113.7")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2, result.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted key stops the check", func(t *testing.T) {
		l, mock, now := newTestLimiter(t, cfg)

		mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
			WithArgs("email:coach@example.com", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(3, now.Add(-10*time.Minute)))

		result, err := l.Check(context.Background(), "email:coach@example.com", "ip:203.0.113.7")
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, "email:coach@example.com", result.Scope)
		assert.Equal(t, 5*time.Minute, result.RetryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty keys are skipped", func(t *testing.T) {
		l, mock, _ := newTestLimiter(t, cfg)

		result, err := l.Check(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("disabled", func(t *testing.T) {
		l, mock, _ := newTestLimiter(t, Config{})

		result, err := l.Check(context.Background(), "email:coach@example.com")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		l, mock, _ := newTestLimiter(t, cfg)

		mock.ExpectQuery(regexp.QuoteMeta(countQuery)).WillReturnError(sql.ErrConnDone)

		result, err := l.Check(context.Background(), "email:coach@example.com")
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}

func TestLimiter_RecordFailure(t *testing.T) {
	l, mock, now := newTestLimiter(t, DefaultConfig())

	for _, key := range []string{"email:coach@example.com", "ip:203.0.113.7"} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sign_in_attempts")).
			WithArgs(key, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, l.RecordFailure(context.Background(), "email:coach@example.com", "ip:203.0.113.7"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_Reset(t *testing.T) {
	l, mock, _ := newTestLimiter(t, DefaultConfig())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sign_in_attempts WHERE scope_key = $1")).
		WithArgs("email:coach@example.com").
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, l.Reset(context.Background(), "email:coach@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_Cleanup(t *testing.T) {
	l, mock, now := newTestLimiter(t, DefaultConfig())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sign_in_attempts WHERE attempted_at < $1")).
		WithArgs(now.Add(-15 * time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	rows, err := l.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_RunCleanupStopsOnCancel(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{MaxAttempts: 1, Window: time.Minute, CleanupInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunCleanup(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}
