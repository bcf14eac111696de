// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// WorkingSet is the mutable, budget-bounded context document for one
// run. It is created once, mutated only through the state store's
// patch operation, and never deleted by the engine.
type WorkingSet struct {
	SchemaVersion string `json:"_schema_version" cbor:"_schema_version"`

	// UpdateSeq is the optimistic-concurrency version. It starts at
	// 0 and increases by exactly 1 per accepted mutation.
	UpdateSeq int64 `json:"_update_seq" cbor:"_update_seq"`

	// Identity triple. Immutable after creation.
	TaskID   string `json:"task_id" cbor:"task_id"`
	ThreadID string `json:"thread_id" cbor:"thread_id"`
	RunID    string `json:"run_id" cbor:"run_id"`

	Status            string `json:"status" cbor:"status"`
	Objective         string `json:"objective" cbor:"objective"`
	CurrentStage      string `json:"current_stage" cbor:"current_stage"`
	NextAction        string `json:"next_action" cbor:"next_action"`
	LastActionSummary string `json:"last_action_summary" cbor:"last_action_summary"`

	AcceptanceCriteria []string `json:"acceptance_criteria" cbor:"acceptance_criteria"`
	Constraints        []string `json:"constraints" cbor:"constraints"`
	ArtifactRefs       []string `json:"artifact_refs" cbor:"artifact_refs"`
	Blockers           []string `json:"blockers" cbor:"blockers"`

	// PinnedContext holds durable notes, capacity-bounded by item
	// count. SlidingContext holds ephemeral notes, re-derived under
	// the token budget on every mutation.
	PinnedContext  []PinnedNote  `json:"pinned_context" cbor:"pinned_context"`
	SlidingContext []SlidingNote `json:"sliding_context" cbor:"sliding_context"`
}

// PinnedNote is a durable working-set note. Pinned content is never
// evicted by the token budget; the item count cap is the only limit.
type PinnedNote struct {
	ID        string `json:"id" cbor:"id"`
	Content   string `json:"content" cbor:"content"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	SourceRef string `json:"source_ref,omitempty" cbor:"source_ref,omitempty"`
}

// SlidingNote is an ephemeral working-set note, evictable under the
// token budget. Higher priority survives longer; recency breaks ties.
type SlidingNote struct {
	ID        string `json:"id" cbor:"id"`
	Content   string `json:"content" cbor:"content"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	Priority  int    `json:"priority" cbor:"priority"`
}

// Validate checks the working set's structural invariants.
func (ws *WorkingSet) Validate() error {
	const doc = "working_set"
	if ws.SchemaVersion != Version {
		return invalid(doc, "_schema_version %q, want %q", ws.SchemaVersion, Version)
	}
	if ws.UpdateSeq < 0 {
		return invalid(doc, "_update_seq %d is negative", ws.UpdateSeq)
	}
	if ws.TaskID == "" {
		return invalid(doc, "task_id is required")
	}
	if ws.ThreadID == "" {
		return invalid(doc, "thread_id is required")
	}
	if ws.RunID == "" {
		return invalid(doc, "run_id is required")
	}
	if ws.Objective == "" {
		return invalid(doc, "objective is required")
	}
	for i, note := range ws.PinnedContext {
		if note.ID == "" {
			return invalid(doc, "pinned_context[%d]: id is required", i)
		}
		if note.Timestamp == "" {
			return invalid(doc, "pinned_context[%d]: timestamp is required", i)
		}
	}
	for i, note := range ws.SlidingContext {
		if note.ID == "" {
			return invalid(doc, "sliding_context[%d]: id is required", i)
		}
		if note.Timestamp == "" {
			return invalid(doc, "sliding_context[%d]: timestamp is required", i)
		}
		if note.Priority < 0 {
			return invalid(doc, "sliding_context[%d]: priority %d is negative", i, note.Priority)
		}
	}
	return nil
}

// Clone returns a deep copy of the working set. Patch application
// mutates the copy so a failed patch leaves the loaded document
// untouched.
func (ws *WorkingSet) Clone() *WorkingSet {
	clone := *ws
	clone.AcceptanceCriteria = append([]string(nil), ws.AcceptanceCriteria...)
	clone.Constraints = append([]string(nil), ws.Constraints...)
	clone.ArtifactRefs = append([]string(nil), ws.ArtifactRefs...)
	clone.Blockers = append([]string(nil), ws.Blockers...)
	clone.PinnedContext = append([]PinnedNote(nil), ws.PinnedContext...)
	clone.SlidingContext = append([]SlidingNote(nil), ws.SlidingContext...)
	return &clone
}
