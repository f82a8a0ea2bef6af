package executor

import (
	"context"
	"database/sql"

	"github.com/teranos/flowstate/errors"
)

// RerunTracker reports rerun generations recorded on log chunks.
// Generation 0 is the first, non-rerun run of an execution.
type RerunTracker struct {
	db *sql.DB
}

// NewRerunTracker creates a rerun generation tracker.
func NewRerunTracker(db *sql.DB) *RerunTracker {
	return &RerunTracker{db: db}
}

// MaxGenerationForExecution returns the highest generation logged for execID, or 0.
func (r *RerunTracker) MaxGenerationForExecution(ctx context.Context, execID int64) (int, error) {
	var gen int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(rerun_generation), 0) FROM execution_logs WHERE exec_id = ?`, execID,
	).Scan(&gen)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to fetch max generation of execution %d", execID)
	}
	return gen, nil
}

// MaxGenerationForJob returns the highest generation logged by one job attempt.
// It is only called once the attempt is logging, so no record is a PersistenceError.
func (r *RerunTracker) MaxGenerationForJob(ctx context.Context, execID int64, jobID string, attempt int) (int, error) {
	gen, err := maxGeneration(ctx, r.db, execID, jobID, attempt)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to fetch generation of %s attempt %d in execution %d", jobID, attempt, execID)
	}
	if !gen.Valid {
		return 0, errors.NewPersistenceError(nil, "no generation recorded for %s attempt %d in execution %d", jobID, attempt, execID)
	}
	return int(gen.Int64), nil
}

// NextGeneration returns the generation a re-submission of execID must log
// under: one past the current maximum, or 0 when nothing was logged yet.
func (r *RerunTracker) NextGeneration(ctx context.Context, execID int64) (int, error) {
	var gen sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(rerun_generation) FROM execution_logs WHERE exec_id = ?`, execID,
	).Scan(&gen)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to fetch next generation of execution %d", execID)
	}
	if !gen.Valid {
		return 0, nil
	}
	return int(gen.Int64) + 1, nil
}

func maxGeneration(ctx context.Context, q Querier, execID int64, name string, attempt int) (sql.NullInt64, error) {
	var gen sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(rerun_generation) FROM execution_logs WHERE exec_id = ? AND name = ? AND attempt = ?`,
		execID, name, attempt,
	).Scan(&gen)
	return gen, err
}
