package executor

import (
	"time"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/props"
)

// Flow is one execution of a workflow graph. The whole struct is serialized
// into the execution's payload; the scalar fields are also kept as queryable
// columns and are only ever written together with the payload.
type Flow struct {
	ExecID         int64     `json:"execId" yaml:"exec_id" toml:"exec_id"`
	UUID           string    `json:"uuid" yaml:"uuid" toml:"uuid"`
	ProjectID      int       `json:"projectId" yaml:"project_id" toml:"project_id"`
	ProjectName    string    `json:"projectName" yaml:"project_name" toml:"project_name"`
	FlowID         string    `json:"flowId" yaml:"flow_id" toml:"flow_id"`
	Version        int       `json:"version" yaml:"version" toml:"version"`
	Status         Status    `json:"status" yaml:"status" toml:"status"`
	SubmitTime     time.Time `json:"submitTime" yaml:"submit_time" toml:"submit_time"`
	SubmitUser     string    `json:"submitUser" yaml:"submit_user" toml:"submit_user"`
	UpdateTime     time.Time `json:"updateTime" yaml:"update_time" toml:"update_time"`
	StartTime      time.Time `json:"startTime" yaml:"start_time" toml:"start_time"`
	EndTime        time.Time `json:"endTime" yaml:"end_time" toml:"end_time"`
	CustomTimeFlag string    `json:"customTimeFlag,omitempty" yaml:"custom_time_flag,omitempty" toml:"custom_time_flag,omitempty"`
	Nodes          []*Node   `json:"nodes,omitempty" yaml:"nodes,omitempty" toml:"nodes,omitempty"`

	// EncodingType is how the payload was stored; not part of the payload itself.
	EncodingType codec.EncodingType `json:"-" yaml:"-" toml:"-"`
}

// Node is a vertex in the execution graph. A node with Nodes set is an
// embedded sub-flow.
type Node struct {
	ID        string    `json:"id" yaml:"id" toml:"id"`
	Type      string    `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Status    Status    `json:"status" yaml:"status" toml:"status"`
	StartTime time.Time `json:"startTime" yaml:"start_time" toml:"start_time"`
	EndTime   time.Time `json:"endTime" yaml:"end_time" toml:"end_time"`
	Attempt   int       `json:"attempt" yaml:"attempt" toml:"attempt"`
	InNodes   []string  `json:"inNodes,omitempty" yaml:"in_nodes,omitempty" toml:"in_nodes,omitempty"`
	OutNodes  []string  `json:"outNodes,omitempty" yaml:"out_nodes,omitempty" toml:"out_nodes,omitempty"`
	Nodes     []*Node   `json:"nodes,omitempty" yaml:"nodes,omitempty" toml:"nodes,omitempty"`
}

// Walk visits every node of the graph depth-first, sub-flows included.
// path is the colon-joined chain of enclosing sub-flow ids, starting with flowID.
func (f *Flow) Walk(fn func(path string, n *Node)) {
	walkNodes(f.FlowID, f.Nodes, fn)
}

func walkNodes(path string, nodes []*Node, fn func(string, *Node)) {
	for _, n := range nodes {
		fn(path, n)
		if len(n.Nodes) > 0 {
			walkNodes(path+":"+n.ID, n.Nodes, fn)
		}
	}
}

// JobNode is the write form of one job attempt within an execution.
// Its identity is (ExecID, FlowPath, JobID, Attempt, RerunGeneration).
type JobNode struct {
	ExecID          int64
	ProjectID       int
	Version         int
	FlowPath        string
	JobID           string
	Attempt         int
	RerunGeneration int
	StartTime       time.Time
	EndTime         time.Time
	Status          Status
	OutputProps     *props.Props
}

// JobNodeInfo is the read form of a job-node row, without its blobs.
type JobNodeInfo struct {
	ExecID          int64     `json:"exec_id" yaml:"exec_id" toml:"exec_id"`
	ProjectID       int       `json:"project_id" yaml:"project_id" toml:"project_id"`
	Version         int       `json:"version" yaml:"version" toml:"version"`
	FlowPath        string    `json:"flow_path" yaml:"flow_path" toml:"flow_path"`
	JobID           string    `json:"job_id" yaml:"job_id" toml:"job_id"`
	Attempt         int       `json:"attempt" yaml:"attempt" toml:"attempt"`
	RerunGeneration int       `json:"rerun_generation" yaml:"rerun_generation" toml:"rerun_generation"`
	StartTime       time.Time `json:"start_time" yaml:"start_time" toml:"start_time"`
	EndTime         time.Time `json:"end_time" yaml:"end_time" toml:"end_time"`
	Status          Status    `json:"status" yaml:"status" toml:"status"`
}

// TimeRange is a job attempt's start and end time.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ExecutionReference records which worker currently owns a running execution.
type ExecutionReference struct {
	ExecID     int64     `json:"exec_id" yaml:"exec_id" toml:"exec_id"`
	Host       string    `json:"host" yaml:"host" toml:"host"`
	Port       int       `json:"port" yaml:"port" toml:"port"`
	UpdateTime time.Time `json:"update_time" yaml:"update_time" toml:"update_time"`
}

// ActiveFlow pairs an active reference with the execution it points at.
type ActiveFlow struct {
	Reference *ExecutionReference `json:"reference" yaml:"reference" toml:"reference"`
	Flow      *Flow               `json:"flow" yaml:"flow" toml:"flow"`
}

// LogKey addresses one log stream. An empty Name is the execution's own log.
type LogKey struct {
	ExecID     int64
	Name       string
	Attempt    int
	Generation int
}

// LogData is a contiguous slice of a log stream, trimmed to whole UTF-8
// characters. Offset and Length describe the returned bytes in stream
// coordinates. A read never spans a gap between stored chunks.
type LogData struct {
	Offset int64  `json:"offset"`
	Length int    `json:"length"`
	Data   []byte `json:"-"`
}

func (d *LogData) String() string {
	return string(d.Data)
}
