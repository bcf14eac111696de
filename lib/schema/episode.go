// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Episode is a checkpoint record bridging two working-set snapshots
// and a ledger window. Episodes are immutable once persisted, one
// file per episode.
type Episode struct {
	SchemaVersion string `json:"_schema_version" cbor:"_schema_version"`

	EpisodeID string `json:"episode_id" cbor:"episode_id"`
	CreatedAt string `json:"created_at" cbor:"created_at"`

	// Summary is derived deterministically from the ledger window:
	// sorted per-type event counts plus a short tail listing.
	Summary string `json:"summary" cbor:"summary"`

	WSBefore WorkingSet `json:"ws_before" cbor:"ws_before"`
	WSAfter  WorkingSet `json:"ws_after" cbor:"ws_after"`

	// MemoryCommits lists memory ids committed at this milestone.
	MemoryCommits []string `json:"memory_commits" cbor:"memory_commits"`

	NextEntryPoint string `json:"next_entry_point" cbor:"next_entry_point"`
}

// Validate checks the episode's structural invariants, including both
// embedded working-set snapshots.
func (e *Episode) Validate() error {
	const doc = "episode"
	if e.SchemaVersion != Version {
		return invalid(doc, "_schema_version %q, want %q", e.SchemaVersion, Version)
	}
	if e.EpisodeID == "" {
		return invalid(doc, "episode_id is required")
	}
	if e.CreatedAt == "" {
		return invalid(doc, "created_at is required")
	}
	if err := e.WSBefore.Validate(); err != nil {
		return invalid(doc, "ws_before: %v", err)
	}
	if err := e.WSAfter.Validate(); err != nil {
		return invalid(doc, "ws_after: %v", err)
	}
	return nil
}
