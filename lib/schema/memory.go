// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Memory item status values. Items are tombstoned, never deleted.
const (
	MemoryStatusActive     = "active"
	MemoryStatusDeprecated = "deprecated"
)

// Memory change request operations.
const (
	MemoryOpAdd       = "add"
	MemoryOpSupersede = "supersede"
	MemoryOpDeprecate = "deprecate"
	MemoryOpNoop      = "noop"
)

// DefaultMemoryConfidence is applied at commit time to change
// requests that leave Confidence unset.
const DefaultMemoryConfidence = 0.8

// MemoryItem is one committed long-term memory fact. Owned
// exclusively by the memory store; status transitions happen only
// through commit.
type MemoryItem struct {
	SchemaVersion string `json:"_schema_version" cbor:"_schema_version"`

	MemoryID  string `json:"memory_id" cbor:"memory_id"`
	Type      string `json:"type" cbor:"type"`
	Scope     string `json:"scope" cbor:"scope"`
	UserID    string `json:"user_id,omitempty" cbor:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty" cbor:"project_id,omitempty"`

	Content    string  `json:"content" cbor:"content"`
	Confidence float64 `json:"confidence" cbor:"confidence"`

	// Status is "active" or "deprecated".
	Status string `json:"status" cbor:"status"`

	// Supersedes lists memory ids this item replaced at commit.
	Supersedes []string `json:"supersedes" cbor:"supersedes"`

	SourceRefs []string `json:"source_refs" cbor:"source_refs"`

	CreatedAt string `json:"created_at" cbor:"created_at"`
	UpdatedAt string `json:"updated_at" cbor:"updated_at"`
}

// Validate checks the item's structural invariants.
func (m *MemoryItem) Validate() error {
	const doc = "memory_item"
	if m.SchemaVersion != Version {
		return invalid(doc, "_schema_version %q, want %q", m.SchemaVersion, Version)
	}
	if m.MemoryID == "" {
		return invalid(doc, "memory_id is required")
	}
	if m.Type == "" {
		return invalid(doc, "type is required")
	}
	if m.Scope == "" {
		return invalid(doc, "scope is required")
	}
	if m.Content == "" {
		return invalid(doc, "content is required")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return invalid(doc, "confidence %g outside [0, 1]", m.Confidence)
	}
	if m.Status != MemoryStatusActive && m.Status != MemoryStatusDeprecated {
		return invalid(doc, "status %q, want %q or %q", m.Status, MemoryStatusActive, MemoryStatusDeprecated)
	}
	if m.CreatedAt == "" {
		return invalid(doc, "created_at is required")
	}
	if m.UpdatedAt == "" {
		return invalid(doc, "updated_at is required")
	}
	return nil
}

// MemoryChangeRequest is a staged request to create, supersede, or
// deprecate a memory item. Transient: it exists only inside a
// proposed batch and is never persisted standalone. Every op except
// noop materializes a new item at commit, so type, scope, and content
// are required for deprecate too (the materialized record documents
// what was retracted and why).
type MemoryChangeRequest struct {
	Op string `json:"op"`

	Type      string `json:"type,omitempty"`
	Scope     string `json:"scope,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	Content string `json:"content,omitempty"`

	// Confidence in [0, 1]. Zero means unset; commit applies
	// DefaultMemoryConfidence.
	Confidence float64 `json:"confidence,omitempty"`

	// MemoryID optionally fixes the id of the item this request
	// materializes; commit mints one otherwise.
	MemoryID string `json:"memory_id,omitempty"`

	// Supersedes lists the memory ids to tombstone when Op is
	// "supersede".
	Supersedes []string `json:"supersedes,omitempty"`

	// TargetMemoryID names the item to tombstone when Op is
	// "deprecate".
	TargetMemoryID string `json:"target_memory_id,omitempty"`

	SourceRefs []string `json:"source_refs,omitempty"`
}

// Validate checks the change request's structural invariants.
func (r *MemoryChangeRequest) Validate() error {
	const doc = "mcr"
	switch r.Op {
	case MemoryOpAdd, MemoryOpSupersede, MemoryOpDeprecate, MemoryOpNoop:
	default:
		return invalid(doc, "op %q, want add, supersede, deprecate, or noop", r.Op)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return invalid(doc, "confidence %g outside [0, 1]", r.Confidence)
	}
	if r.Op == MemoryOpNoop {
		return nil
	}
	// Every non-noop op materializes an item, so the item fields are
	// required even for deprecate.
	if r.Type == "" {
		return invalid(doc, "type is required for op %q", r.Op)
	}
	if r.Scope == "" {
		return invalid(doc, "scope is required for op %q", r.Op)
	}
	if r.Content == "" {
		return invalid(doc, "content is required for op %q", r.Op)
	}
	if r.Op == MemoryOpSupersede && len(r.Supersedes) == 0 {
		return invalid(doc, "supersedes must name at least one memory id")
	}
	if r.Op == MemoryOpDeprecate && r.TargetMemoryID == "" {
		return invalid(doc, "target_memory_id is required for op %q", r.Op)
	}
	return nil
}
