package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
)

// FlowStore persists execution records: queryable scalar columns plus the
// serialized execution graph.
type FlowStore struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

// NewFlowStore creates a flow store writing payloads with opts.Encoding.
func NewFlowStore(db *sql.DB, opts Options) *FlowStore {
	return &FlowStore{db: db, opts: opts.withDefaults(), now: time.Now}
}

const insertExecutionSQL = `
	INSERT INTO executions (
		project_id, project_name, flow_id, version, status,
		submit_time, submit_user, update_time, start_time, end_time, custom_time_flag
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const updateExecutionSQL = `
	UPDATE executions
	SET project_name = ?,
	    flow_id = ?,
	    submit_user = ?,
	    status = ?,
	    update_time = ?,
	    start_time = ?,
	    end_time = ?,
	    custom_time_flag = ?,
	    enc_type = ?,
	    flow_data = ?
	WHERE exec_id = ?`

// Create assigns a new execution id and persists flow with status PREPARING.
// flow is mutated to carry the id, UUID, status and timestamps that were stored.
func (s *FlowStore) Create(ctx context.Context, flow *Flow) (int64, error) {
	now := normalizeTime(s.now())
	flow.Status = StatusPreparing
	flow.SubmitTime = now
	flow.UpdateTime = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to begin create of flow %s", flow.FlowID)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertExecutionSQL,
		flow.ProjectID,
		flow.ProjectName,
		flow.FlowID,
		flow.Version,
		int(flow.Status),
		toMillis(flow.SubmitTime),
		flow.SubmitUser,
		toMillis(flow.UpdateTime),
		toMillis(flow.StartTime),
		toMillis(flow.EndTime),
		flow.CustomTimeFlag,
	)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to insert execution for flow %s", flow.FlowID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to read execution id for flow %s", flow.FlowID)
	}
	if id <= 0 {
		return 0, errors.NewPersistenceError(nil, "execution id is not properly created (got %d)", id)
	}

	flow.ExecID = id
	if flow.UUID == "" {
		flow.UUID = uuid.NewString()
	}

	if _, err := s.write(ctx, tx, flow); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewPersistenceError(err, "failed to commit execution %d", id)
	}

	s.opts.Logger.Infow("Execution created",
		logger.FieldExecID, id,
		logger.FieldProjectID, flow.ProjectID,
		logger.FieldFlowID, flow.FlowID,
		logger.FieldUUID, flow.UUID,
	)
	return id, nil
}

// Update overwrites the payload and its scalar columns for flow.ExecID in one statement.
func (s *FlowStore) Update(ctx context.Context, flow *Flow) error {
	n, err := s.write(ctx, s.db, flow)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFoundError("execution %d not found", flow.ExecID)
	}
	s.opts.Logger.Debugw("Execution updated", logger.FieldExecID, flow.ExecID, logger.FieldStatus, flow.Status.String())
	return nil
}

// write is the single writer of the executions scalar columns.
func (s *FlowStore) write(ctx context.Context, q Querier, flow *Flow) (int64, error) {
	flow.SubmitTime = normalizeTime(flow.SubmitTime)
	flow.UpdateTime = normalizeTime(flow.UpdateTime)
	flow.StartTime = normalizeTime(flow.StartTime)
	flow.EndTime = normalizeTime(flow.EndTime)

	data, err := codec.EncodeJSON(flow, s.opts.Encoding)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to encode execution %d", flow.ExecID)
	}

	res, err := q.ExecContext(ctx, updateExecutionSQL,
		flow.ProjectName,
		flow.FlowID,
		flow.SubmitUser,
		int(flow.Status),
		toMillis(flow.UpdateTime),
		toMillis(flow.StartTime),
		toMillis(flow.EndTime),
		flow.CustomTimeFlag,
		int(s.opts.Encoding),
		data,
		flow.ExecID,
	)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to update execution %d", flow.ExecID)
	}
	flow.EncodingType = s.opts.Encoding
	return rowsAffected(res, "execution")
}

// decodeFlow rebuilds a Flow from its stored payload.
func decodeFlow(execID int64, enc sql.NullInt64, data []byte) (*Flow, error) {
	if !enc.Valid || data == nil {
		return nil, errors.NewPersistenceError(nil, "execution %d has no payload", execID)
	}
	encType, err := codec.FromInt(int(enc.Int64))
	if err != nil {
		return nil, errors.NewPersistenceError(err, "execution %d", execID)
	}
	var flow Flow
	if err := codec.DecodeJSON(data, encType, &flow); err != nil {
		return nil, errors.NewPersistenceError(err, "failed to decode execution %d", execID)
	}
	flow.ExecID = execID
	flow.EncodingType = encType
	return &flow, nil
}

var fetchFlowQuery = query[*Flow]{
	name: "fetch execution",
	sql:  `SELECT exec_id, enc_type, flow_data FROM executions WHERE exec_id = ?`,
	scan: scanFlow,
}

func scanFlow(rows *sql.Rows) (*Flow, error) {
	var (
		id   int64
		enc  sql.NullInt64
		data []byte
	)
	if err := rows.Scan(&id, &enc, &data); err != nil {
		return nil, err
	}
	return decodeFlow(id, enc, data)
}

// FetchByID returns the execution decoded from its payload.
func (s *FlowStore) FetchByID(ctx context.Context, execID int64) (*Flow, error) {
	flows, err := runQuery(ctx, s.db, fetchFlowQuery, execID)
	if err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, errors.NewNotFoundError("execution %d not found", execID)
	}
	return flows[0], nil
}

var fetchActiveQuery = query[*ActiveFlow]{
	name: "fetch active executions",
	sql: `
		SELECT e.exec_id, e.enc_type, e.flow_data, a.host, a.port, a.update_time
		FROM executions e
		INNER JOIN execution_active_references a ON e.exec_id = a.exec_id`,
	scan: func(rows *sql.Rows) (*ActiveFlow, error) {
		var (
			id         int64
			enc        sql.NullInt64
			data       []byte
			host       string
			port       int
			updateTime int64
		)
		if err := rows.Scan(&id, &enc, &data, &host, &port, &updateTime); err != nil {
			return nil, err
		}
		flow, err := decodeFlow(id, enc, data)
		if err != nil {
			return nil, err
		}
		return &ActiveFlow{
			Reference: &ExecutionReference{ExecID: id, Host: host, Port: port, UpdateTime: fromMillis(updateTime)},
			Flow:      flow,
		}, nil
	},
}

// FetchActive returns every execution that currently has an active reference.
// Used on orchestrator restart to rediscover in-flight work.
func (s *FlowStore) FetchActive(ctx context.Context) (map[int64]*ActiveFlow, error) {
	active, err := runQuery(ctx, s.db, fetchActiveQuery)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*ActiveFlow, len(active))
	for _, a := range active {
		out[a.Reference.ExecID] = a
	}
	return out, nil
}

// Count returns the number of executions.
func (s *FlowStore) Count(ctx context.Context) (int, error) {
	return runCount(ctx, s.db, "count executions", `SELECT COUNT(*) FROM executions`)
}

// CountForFlow returns the number of executions of one flow.
func (s *FlowStore) CountForFlow(ctx context.Context, projectID int, flowID string) (int, error) {
	return runCount(ctx, s.db, "count flow executions",
		`SELECT COUNT(*) FROM executions WHERE project_id = ? AND flow_id = ?`, projectID, flowID)
}

// CountForJob returns the number of job-node rows recorded for one job.
func (s *FlowStore) CountForJob(ctx context.Context, projectID int, jobID string) (int, error) {
	return runCount(ctx, s.db, "count job nodes",
		`SELECT COUNT(*) FROM execution_job_nodes WHERE project_id = ? AND job_id = ?`, projectID, jobID)
}

// SubmitTimeOf returns when execID was submitted. Unknown ids are a NotFoundError;
// callers deriving time-based properties must not fall back to the current time.
func (s *FlowStore) SubmitTimeOf(ctx context.Context, execID int64) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT submit_time FROM executions WHERE exec_id = ?`, execID).Scan(&ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, errors.NewNotFoundError("execution %d not found", execID)
		}
		return time.Time{}, errors.NewPersistenceError(err, "failed to fetch submit time of execution %d", execID)
	}
	return fromMillis(ms), nil
}
