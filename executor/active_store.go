package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
)

// ActiveStore is the registry of running executions and the worker owning each.
// The exec_id primary key guarantees at most one reference per execution.
type ActiveStore struct {
	db   *sql.DB
	opts Options
}

// NewActiveStore creates an active execution registry.
func NewActiveStore(db *sql.DB, opts Options) *ActiveStore {
	return &ActiveStore{db: db, opts: opts.withDefaults()}
}

// Add records ref. A second reference for the same execution fails with an
// error matching both ErrPersistence and ErrConflict.
func (s *ActiveStore) Add(ctx context.Context, ref *ExecutionReference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_active_references (exec_id, host, port, update_time) VALUES (?, ?, ?, ?)`,
		ref.ExecID, ref.Host, ref.Port, toMillis(ref.UpdateTime),
	)
	if err != nil {
		perr := errors.NewPersistenceError(err, "failed to add active reference for execution %d", ref.ExecID)
		if db.IsUniqueViolation(err) {
			return errors.Mark(perr, errors.ErrConflict)
		}
		return perr
	}
	s.opts.Logger.Debugw("Active reference added", logger.FieldExecID, ref.ExecID, logger.FieldHost, ref.Host, logger.FieldPort, ref.Port)
	return nil
}

// Remove deletes the reference for execID. Removing an absent reference is not an error.
func (s *ActiveStore) Remove(ctx context.Context, execID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM execution_active_references WHERE exec_id = ?`, execID)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to remove active reference for execution %d", execID)
	}
	s.opts.Logger.Debugw("Active reference removed", logger.FieldExecID, execID)
	return nil
}

// Heartbeat refreshes the update time of execID's reference. It returns false
// when no reference exists, which means the execution already finished.
func (s *ActiveStore) Heartbeat(ctx context.Context, execID int64, t time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_active_references SET update_time = ? WHERE exec_id = ?`,
		toMillis(t), execID,
	)
	if err != nil {
		return false, errors.NewPersistenceError(err, "failed to heartbeat execution %d", execID)
	}
	n, err := rowsAffected(res, "active reference")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var listActiveQuery = query[*ExecutionReference]{
	name: "list active references",
	sql:  `SELECT exec_id, host, port, update_time FROM execution_active_references ORDER BY exec_id`,
	scan: func(rows *sql.Rows) (*ExecutionReference, error) {
		var (
			ref        ExecutionReference
			updateTime int64
		)
		if err := rows.Scan(&ref.ExecID, &ref.Host, &ref.Port, &updateTime); err != nil {
			return nil, err
		}
		ref.UpdateTime = fromMillis(updateTime)
		return &ref, nil
	},
}

// List returns every active reference ordered by execution id.
func (s *ActiveStore) List(ctx context.Context) ([]*ExecutionReference, error) {
	return runQuery(ctx, s.db, listActiveQuery)
}
