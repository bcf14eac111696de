// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Patch is a working-set mutation request: a set of field
// replacements guarded by the optimistic-concurrency sequence the
// caller last observed.
type Patch struct {
	// ExpectedSeq must equal the stored document's _update_seq for
	// the patch to apply.
	ExpectedSeq int64 `json:"expected_seq"`

	// Set maps working-set field names to replacement values.
	Set map[string]any `json:"set"`
}

// Patchable working-set field names. Fields absent from both lists
// (acceptance_criteria, constraints) are not a patch target at all
// and are rejected during patch validation.
var patchableFields = map[string]bool{
	"status":              true,
	"current_stage":       true,
	"next_action":         true,
	"last_action_summary": true,
	"artifact_refs":       true,
	"blockers":            true,
	"pinned_context":      true,
	"sliding_context":     true,
}

// protectedFields are present in the working set document but must
// never be set by a patch. Naming one is a distinct error from naming
// an unknown field: the state store reports it as a protected-field
// violation rather than a schema error.
var protectedFields = map[string]bool{
	"_schema_version": true,
	"_update_seq":     true,
	"task_id":         true,
	"thread_id":       true,
	"run_id":          true,
	"objective":       true,
}

// ProtectedField reports whether name is an immutable working-set
// field.
func ProtectedField(name string) bool {
	return protectedFields[name]
}

// Validate checks the patch shape: a non-negative expected sequence
// and only known field names. Protected fields pass shape validation —
// the state store rejects them separately so the caller sees a
// protected-field error, not a schema error.
func (p *Patch) Validate() error {
	const doc = "ws_patch"
	if p.ExpectedSeq < 0 {
		return invalid(doc, "expected_seq %d is negative", p.ExpectedSeq)
	}
	if len(p.Set) == 0 {
		return invalid(doc, "set is required and must name at least one field")
	}
	for name := range p.Set {
		if !patchableFields[name] && !protectedFields[name] {
			return invalid(doc, "unknown patch field %q", name)
		}
	}
	return nil
}
