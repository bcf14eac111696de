// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// LedgerEvent is one immutable entry in a run's append-only audit
// log. SequenceID is assigned by the ledger at append time when left
// zero; all other fields are set by the writer.
type LedgerEvent struct {
	SchemaVersion string `json:"_schema_version"`

	EventID       string `json:"event_id"`
	ParentEventID string `json:"parent_event_id,omitempty"`

	// SequenceID is monotonic starting at 1, dense, never reused.
	// Zero means "assign at append".
	SequenceID int64 `json:"sequence_id"`

	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	WriterID  string `json:"writer_id"`

	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`

	// Payload is opaque to the ledger.
	Payload map[string]any `json:"payload"`
}

// Validate checks the event's structural invariants. A zero
// SequenceID is valid (it requests assignment); a negative one is
// not.
func (e *LedgerEvent) Validate() error {
	const doc = "ledger_event"
	if e.SchemaVersion != Version {
		return invalid(doc, "_schema_version %q, want %q", e.SchemaVersion, Version)
	}
	if e.EventID == "" {
		return invalid(doc, "event_id is required")
	}
	if e.SequenceID < 0 {
		return invalid(doc, "sequence_id %d is negative", e.SequenceID)
	}
	if e.EventType == "" {
		return invalid(doc, "event_type is required")
	}
	if e.Timestamp == "" {
		return invalid(doc, "timestamp is required")
	}
	if e.WriterID == "" {
		return invalid(doc, "writer_id is required")
	}
	if e.TaskID == "" {
		return invalid(doc, "task_id is required")
	}
	if e.ThreadID == "" {
		return invalid(doc, "thread_id is required")
	}
	if e.RunID == "" {
		return invalid(doc, "run_id is required")
	}
	return nil
}
