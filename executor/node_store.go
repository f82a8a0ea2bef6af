package executor

import (
	"context"
	"database/sql"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
	"github.com/teranos/flowstate/props"
)

// NodeStore persists per-job, per-attempt state within an execution.
type NodeStore struct {
	db   *sql.DB
	opts Options
}

// NewNodeStore creates a job node store.
func NewNodeStore(db *sql.DB, opts Options) *NodeStore {
	return &NodeStore{db: db, opts: opts.withDefaults()}
}

// encodeProps serializes a props bag; a nil bag is stored as NULL.
func encodeProps(p *props.Props, enc codec.EncodingType) (any, any, error) {
	if p == nil {
		return nil, nil, nil
	}
	data, err := codec.EncodeJSON(p.ToHierarchicalMap(), enc)
	if err != nil {
		return nil, nil, err
	}
	return int(enc), data, nil
}

// decodeProps reverses encodeProps. A NULL blob yields nil.
func decodeProps(enc sql.NullInt64, data []byte) (*props.Props, error) {
	if data == nil {
		return nil, nil
	}
	encType := codec.Plain
	if enc.Valid {
		var err error
		if encType, err = codec.FromInt(int(enc.Int64)); err != nil {
			return nil, err
		}
	}
	var m map[string]any
	if err := codec.DecodeJSON(data, encType, &m); err != nil {
		return nil, err
	}
	return props.FromHierarchicalMap(m)
}

// Upload inserts a new job-node row. inputProps may be nil.
func (s *NodeStore) Upload(ctx context.Context, node *JobNode, inputProps *props.Props) error {
	enc, data, err := encodeProps(inputProps, s.opts.Encoding)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to encode input props of job %s", node.JobID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_job_nodes (
			exec_id, project_id, version, flow_path, job_id, attempt, rerun_generation,
			start_time, end_time, status, input_enc, input_params
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ExecID,
		node.ProjectID,
		node.Version,
		node.FlowPath,
		node.JobID,
		node.Attempt,
		node.RerunGeneration,
		toMillis(node.StartTime),
		toMillis(node.EndTime),
		int(node.Status),
		enc,
		data,
	)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to write job %s attempt %d of execution %d",
			node.JobID, node.Attempt, node.ExecID)
	}

	s.opts.Logger.Debugw("Job node uploaded",
		logger.FieldExecID, node.ExecID,
		logger.FieldJobID, node.JobID,
		logger.FieldAttempt, node.Attempt,
		logger.FieldGeneration, node.RerunGeneration,
	)
	return nil
}

// Update writes the end state of an existing job-node row.
func (s *NodeStore) Update(ctx context.Context, node *JobNode) error {
	enc, data, err := encodeProps(node.OutputProps, s.opts.Encoding)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to encode output props of job %s", node.JobID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_job_nodes
		SET start_time = ?, end_time = ?, status = ?, output_enc = ?, output_params = ?
		WHERE exec_id = ? AND flow_path = ? AND job_id = ? AND attempt = ? AND rerun_generation = ?`,
		toMillis(node.StartTime),
		toMillis(node.EndTime),
		int(node.Status),
		enc,
		data,
		node.ExecID,
		node.FlowPath,
		node.JobID,
		node.Attempt,
		node.RerunGeneration,
	)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to update job %s attempt %d of execution %d",
			node.JobID, node.Attempt, node.ExecID)
	}
	n, err := rowsAffected(res, "job node")
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFoundError("job %s attempt %d of execution %d not found",
			node.JobID, node.Attempt, node.ExecID)
	}

	s.opts.Logger.Debugw("Job node updated",
		logger.FieldExecID, node.ExecID,
		logger.FieldJobID, node.JobID,
		logger.FieldAttempt, node.Attempt,
		logger.FieldStatus, node.Status.String(),
	)
	return nil
}

const jobNodeColumns = `exec_id, project_id, version, flow_path, job_id, attempt,
	rerun_generation, start_time, end_time, status`

func scanJobNodeInfo(rows *sql.Rows) (*JobNodeInfo, error) {
	var (
		info       JobNodeInfo
		start, end int64
		status     int
	)
	err := rows.Scan(
		&info.ExecID,
		&info.ProjectID,
		&info.Version,
		&info.FlowPath,
		&info.JobID,
		&info.Attempt,
		&info.RerunGeneration,
		&start,
		&end,
		&status,
	)
	if err != nil {
		return nil, err
	}
	if info.Status, err = statusFromInt(status); err != nil {
		return nil, err
	}
	info.StartTime = fromMillis(start)
	info.EndTime = fromMillis(end)
	return &info, nil
}

var (
	fetchAttemptsQuery = query[*JobNodeInfo]{
		name: "fetch job attempts",
		sql: `SELECT ` + jobNodeColumns + ` FROM execution_job_nodes
			WHERE exec_id = ? AND job_id = ?
			ORDER BY attempt, rerun_generation`,
		scan: scanJobNodeInfo,
	}
	fetchOneQuery = query[*JobNodeInfo]{
		name: "fetch job attempt",
		sql: `SELECT ` + jobNodeColumns + ` FROM execution_job_nodes
			WHERE exec_id = ? AND job_id = ? AND attempt = ?
			ORDER BY rerun_generation DESC
			LIMIT 1`,
		scan: scanJobNodeInfo,
	}
	fetchJobHistoryQuery = query[*JobNodeInfo]{
		name: "fetch job history",
		sql: `SELECT ` + jobNodeColumns + ` FROM execution_job_nodes
			WHERE project_id = ? AND job_id = ?
			ORDER BY exec_id DESC, attempt DESC, rerun_generation DESC
			LIMIT ? OFFSET ?`,
		scan: scanJobNodeInfo,
	}
)

// FetchAttempts returns every attempt of jobID in execID ordered by attempt.
// No attempts is an empty slice, not an error.
func (s *NodeStore) FetchAttempts(ctx context.Context, execID int64, jobID string) ([]*JobNodeInfo, error) {
	return runQuery(ctx, s.db, fetchAttemptsQuery, execID, jobID)
}

// FetchOne returns one attempt, or a NotFoundError. When the attempt was
// recorded under several rerun generations the latest one wins.
func (s *NodeStore) FetchOne(ctx context.Context, execID int64, jobID string, attempt int) (*JobNodeInfo, error) {
	infos, err := runQuery(ctx, s.db, fetchOneQuery, execID, jobID, attempt)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errors.NewNotFoundError("job %s attempt %d of execution %d not found", jobID, attempt, execID)
	}
	return infos[0], nil
}

// FetchJobHistory pages through every recorded attempt of a job across
// executions, most recent first.
func (s *NodeStore) FetchJobHistory(ctx context.Context, projectID int, jobID string, skip, size int) ([]*JobNodeInfo, error) {
	return runQuery(ctx, s.db, fetchJobHistoryQuery, projectID, jobID, size, skip)
}

// propsPair holds the raw input and output blobs of the latest attempt.
type propsPair struct {
	inEnc, outEnc sql.NullInt64
	in, out       []byte
}

var fetchPropsQuery = query[propsPair]{
	name: "fetch job props",
	sql: `SELECT input_enc, input_params, output_enc, output_params
		FROM execution_job_nodes
		WHERE exec_id = ? AND job_id = ?
		ORDER BY attempt DESC, rerun_generation DESC
		LIMIT 1`,
	scan: func(rows *sql.Rows) (propsPair, error) {
		var p propsPair
		err := rows.Scan(&p.inEnc, &p.in, &p.outEnc, &p.out)
		return p, err
	},
}

// FetchInputOutputProps returns both props bags of the latest attempt of jobID.
// A missing row or a NULL blob yields nil for that bag.
func (s *NodeStore) FetchInputOutputProps(ctx context.Context, execID int64, jobID string) (*props.Props, *props.Props, error) {
	pairs, err := runQuery(ctx, s.db, fetchPropsQuery, execID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if len(pairs) == 0 {
		return nil, nil, nil
	}
	p := pairs[0]

	in, err := decodeProps(p.inEnc, p.in)
	if err != nil {
		return nil, nil, errors.NewPersistenceError(err, "failed to decode input props of job %s in execution %d", jobID, execID)
	}
	out, err := decodeProps(p.outEnc, p.out)
	if err != nil {
		return nil, nil, errors.NewPersistenceError(err, "failed to decode output props of job %s in execution %d", jobID, execID)
	}
	return in, out, nil
}

// FetchInputProps returns the input props of the latest attempt, or nil.
func (s *NodeStore) FetchInputProps(ctx context.Context, execID int64, jobID string) (*props.Props, error) {
	in, _, err := s.FetchInputOutputProps(ctx, execID, jobID)
	return in, err
}

// FetchOutputProps returns the output props of the latest attempt, or nil.
func (s *NodeStore) FetchOutputProps(ctx context.Context, execID int64, jobID string) (*props.Props, error) {
	_, out, err := s.FetchInputOutputProps(ctx, execID, jobID)
	return out, err
}

// FetchStartEndTime returns the recorded times of node's row, or nil when absent.
func (s *NodeStore) FetchStartEndTime(ctx context.Context, node *JobNode) (*TimeRange, error) {
	var start, end int64
	err := s.db.QueryRowContext(ctx, `
		SELECT start_time, end_time FROM execution_job_nodes
		WHERE exec_id = ? AND flow_path = ? AND job_id = ? AND attempt = ? AND rerun_generation = ?`,
		node.ExecID, node.FlowPath, node.JobID, node.Attempt, node.RerunGeneration,
	).Scan(&start, &end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError(err, "failed to fetch times of job %s in execution %d", node.JobID, node.ExecID)
	}
	return &TimeRange{Start: fromMillis(start), End: fromMillis(end)}, nil
}
