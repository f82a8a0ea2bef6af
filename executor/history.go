package executor

import (
	"context"
	"strings"
	"time"

	"github.com/teranos/flowstate/errors"
)

// HistoryFilter narrows FetchHistory. Zero-valued fields are ignored and the
// remaining predicates are combined with AND. Results are always ordered by
// descending execution id.
type HistoryFilter struct {
	ProjectID       int
	ProjectContains string
	FlowID          string
	FlowContains    string
	UserContains    string
	Status          Status
	StartedAfter    time.Time
	EndedBefore     time.Time
	// Offset requires a positive Limit.
	Offset int
	// Limit <= 0 returns every matching row.
	Limit int
}

// FlowHistory pages through the executions of one flow.
func FlowHistory(projectID int, flowID string, skip, num int) HistoryFilter {
	return HistoryFilter{ProjectID: projectID, FlowID: flowID, Offset: skip, Limit: num}
}

// FlowHistoryByStatus pages through the executions of one flow in one status.
func FlowHistoryByStatus(projectID int, flowID string, status Status, skip, num int) HistoryFilter {
	f := FlowHistory(projectID, flowID, skip, num)
	f.Status = status
	return f
}

// build renders the filter to SQL and its arguments.
func (f HistoryFilter) build() (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID > 0 {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.ProjectContains != "" {
		where = append(where, "project_name LIKE ?")
		args = append(args, "%"+f.ProjectContains+"%")
	}
	if f.FlowID != "" {
		where = append(where, "flow_id = ?")
		args = append(args, f.FlowID)
	}
	if f.FlowContains != "" {
		where = append(where, "flow_id LIKE ?")
		args = append(args, "%"+f.FlowContains+"%")
	}
	if f.UserContains != "" {
		where = append(where, "submit_user LIKE ?")
		args = append(args, "%"+f.UserContains+"%")
	}
	if f.Status != 0 {
		where = append(where, "status = ?")
		args = append(args, int(f.Status))
	}
	if !f.StartedAfter.IsZero() {
		where = append(where, "start_time > ?")
		args = append(args, f.StartedAfter.UnixMilli())
	}
	if !f.EndedBefore.IsZero() {
		// Unset end times are stored as -1 and must not match.
		where = append(where, "end_time >= 0 AND end_time < ?")
		args = append(args, f.EndedBefore.UnixMilli())
	}

	var b strings.Builder
	b.WriteString("SELECT exec_id, enc_type, flow_data FROM executions")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY exec_id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, f.Limit, f.Offset)
	}
	return b.String(), args
}

// FetchHistory returns executions matching filter, newest first.
func (s *FlowStore) FetchHistory(ctx context.Context, filter HistoryFilter) ([]*Flow, error) {
	if filter.Offset < 0 || (filter.Offset > 0 && filter.Limit <= 0) {
		return nil, errors.NewInvalidRequestError("history offset %d needs a positive limit (got %d)", filter.Offset, filter.Limit)
	}
	stmt, args := filter.build()
	return runQuery(ctx, s.db, query[*Flow]{name: "fetch execution history", sql: stmt, scan: scanFlow}, args...)
}
