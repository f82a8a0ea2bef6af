// Package executor persists execution state for the workflow orchestrator:
// execution records, job-node attempts, the active execution registry,
// chunked logs, rerun generations and job attachments.
//
// All stores share one *sql.DB and hold no authoritative in-memory state.
// Failures are reported as errors.ErrNotFound when a point lookup found
// nothing and as errors.ErrPersistence for anything the backing store or
// codec rejected. No operation retries internally.
package executor

import "database/sql"

// Loader bundles every store over one database.
type Loader struct {
	Flows       *FlowStore
	Nodes       *NodeStore
	Active      *ActiveStore
	Logs        *LogStore
	Reruns      *RerunTracker
	Attachments *AttachmentStore
}

// NewLoader builds all stores with the same options.
func NewLoader(db *sql.DB, opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		Flows:       NewFlowStore(db, opts),
		Nodes:       NewNodeStore(db, opts),
		Active:      NewActiveStore(db, opts),
		Logs:        NewLogStore(db, opts),
		Reruns:      NewRerunTracker(db),
		Attachments: NewAttachmentStore(db, opts),
	}
}
