// Package audit records every mutation of the document set.
package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionUpload    Action = "upload"
	ActionUploadErr Action = "upload_failed"
	ActionDelete    Action = "delete"
	ActionReset     Action = "reset"
	ActionSweep     Action = "sweep"
	ActionRebuild   Action = "rebuild"
	ActionReconcile Action = "reconcile"
)

// Entry is a single audit trail record.
type Entry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ActorType    ActorType `json:"actor_type"`
	ActorID      string    `json:"actor_id,omitempty"`
	Action       Action    `json:"action"`
	DocID        string    `json:"doc_id,omitempty"`
	Summary      string    `json:"summary"`
	Detail       string    `json:"detail,omitempty"`
	AffectedDocs []string  `json:"affected_docs,omitempty"`
}
