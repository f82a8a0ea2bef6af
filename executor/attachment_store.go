package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/errors"
)

// AttachmentStore keeps the JSON attachment list a job produces on its job-node row.
// Rows are addressed by the full node identity, flow path included.
type AttachmentStore struct {
	db   *sql.DB
	opts Options
}

// NewAttachmentStore creates an attachment store.
func NewAttachmentStore(db *sql.DB, opts Options) *AttachmentStore {
	return &AttachmentStore{db: db, opts: opts.withDefaults()}
}

// Upload stores blob, a JSON document, on node's row. The row must exist.
func (s *AttachmentStore) Upload(ctx context.Context, node *JobNode, blob []byte) error {
	if !json.Valid(blob) {
		return errors.NewInvalidRequestError("attachments of job %s are not valid JSON", node.JobID)
	}
	data, err := codec.Encode(blob, s.opts.Encoding)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to encode attachments of job %s", node.JobID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_job_nodes
		SET attachments_enc = ?, attachments = ?
		WHERE exec_id = ? AND flow_path = ? AND job_id = ? AND attempt = ? AND rerun_generation = ?`,
		int(s.opts.Encoding),
		data,
		node.ExecID,
		node.FlowPath,
		node.JobID,
		node.Attempt,
		node.RerunGeneration,
	)
	if err != nil {
		return errors.NewPersistenceError(err, "failed to store attachments of job %s in execution %d", node.JobID, node.ExecID)
	}
	n, err := rowsAffected(res, "attachments")
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFoundError("job %s attempt %d of execution %d not found", node.JobID, node.Attempt, node.ExecID)
	}
	return nil
}

// UploadFile stores the contents of path as node's attachments.
func (s *AttachmentStore) UploadFile(ctx context.Context, node *JobNode, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read attachment file %s", path)
	}
	return s.Upload(ctx, node, blob)
}

// Fetch returns the attachment list of the latest attempt of jobID that has
// one, or nil when none was stored.
func (s *AttachmentStore) Fetch(ctx context.Context, execID int64, jobID string) ([]any, error) {
	var (
		enc  sql.NullInt64
		data []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT attachments_enc, attachments FROM execution_job_nodes
		WHERE exec_id = ? AND job_id = ? AND attachments IS NOT NULL
		ORDER BY attempt DESC, rerun_generation DESC
		LIMIT 1`,
		execID, jobID,
	).Scan(&enc, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError(err, "failed to fetch attachments of job %s in execution %d", jobID, execID)
	}

	encType := codec.Plain
	if enc.Valid {
		if encType, err = codec.FromInt(int(enc.Int64)); err != nil {
			return nil, errors.NewPersistenceError(err, "attachments of job %s in execution %d", jobID, execID)
		}
	}
	var list []any
	if err := codec.DecodeJSON(data, encType, &list); err != nil {
		return nil, errors.NewPersistenceError(err, "failed to parse attachments of job %s in execution %d", jobID, execID)
	}
	return list, nil
}
