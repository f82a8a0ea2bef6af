package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/flowstate/errors"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so write helpers can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// query pairs a named SQL statement with the function that maps one row to T.
type query[T any] struct {
	name string
	sql  string
	scan func(rows *sql.Rows) (T, error)
}

// runQuery executes q and scans every row. No rows yields an empty, non-nil slice.
func runQuery[T any](ctx context.Context, db Querier, q query[T], args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, q.sql, args...)
	if err != nil {
		return nil, errors.NewPersistenceError(err, "failed to run %s", q.name)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := q.scan(rows)
		if err != nil {
			return nil, errors.NewPersistenceError(err, "failed to scan %s", q.name)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError(err, "error iterating %s", q.name)
	}
	return out, nil
}

// runCount executes a single-value COUNT query.
func runCount(ctx context.Context, db Querier, name, stmt string, args ...any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, errors.NewPersistenceError(err, "failed to run %s", name)
	}
	return n, nil
}

// rowsAffected returns the affected-row count of a write.
func rowsAffected(res sql.Result, what string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to check rows affected for %s", what)
	}
	return n, nil
}

// Times are stored as epoch milliseconds; -1 marks an unset time.
const unsetMillis int64 = -1

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return unsetMillis
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// normalizeTime drops precision the columns cannot hold so payload and
// columns agree after a round trip.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return fromMillis(t.UnixMilli())
}
