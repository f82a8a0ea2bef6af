package retry

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/flowstate/errors"
)

var busy = sqlite3.Error{Code: sqlite3.ErrBusy}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite busy", busy, true},
		{"sqlite busy wrapped as persistence", errors.NewPersistenceError(busy, "heartbeat 7"), true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"bad conn", errors.Wrap(driver.ErrBadConn, "exec"), true},
		{"not found", errors.NewNotFoundError("execution %d", 7), false},
		{"invalid request", errors.NewInvalidRequestError("negative start"), false},
		{"conflict", errors.Mark(errors.NewPersistenceError(busy, "dup"), errors.ErrConflict), false},
		{"codec failure", errors.NewPersistenceError(errors.New("gzip inflate"), "decode flow"), false},
		{"canceled", errors.Wrap(context.Canceled, "fetch"), false},
		{"closed", errors.New("sql: database is closed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Logger: zaptest.NewLogger(t).Sugar()}, func(context.Context) error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2}, func(context.Context) error {
		calls++
		return errors.NewPersistenceError(busy, "update")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.IsPersistenceError(err))
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	notFound := errors.NewNotFoundError("execution 9")
	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) error {
		calls++
		return notFound
	})
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return busy
	})
	assert.Equal(t, 1, calls)
}

func TestDo_Paces(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = Do(context.Background(), Policy{MaxAttempts: 3, PerSecond: 20}, func(context.Context) error {
		calls++
		return busy
	})
	assert.Equal(t, 3, calls)
	// Burst of one, then two waits of 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, PerSecond: 0.1}, func(context.Context) error {
		calls++
		cancel()
		return busy
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, busy))
}
