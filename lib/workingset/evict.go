// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package workingset

import (
	"sort"

	"github.com/contextfold/contextfold/lib/schema"
	"github.com/contextfold/contextfold/lib/tokenest"
)

// Rendering overhead constants. baseOverheadTokens covers the
// headings and formatting of the rendered context brief;
// slidingItemOverheadTokens covers the priority/timestamp adornment
// of each sliding note.
const (
	baseOverheadTokens        = 25
	slidingItemOverheadTokens = 6
)

// baseLoadTokens is the non-evictable cost: objective, acceptance
// criteria, constraints, pinned content, plus the rendering overhead.
func (s *Store) baseLoadTokens(ws *schema.WorkingSet) int {
	total := tokenest.String(ws.Objective)
	for _, criterion := range ws.AcceptanceCriteria {
		total += tokenest.String(criterion)
	}
	for _, constraint := range ws.Constraints {
		total += tokenest.String(constraint)
	}
	for _, note := range ws.PinnedContext {
		total += tokenest.String(note.Content)
	}
	return total + baseOverheadTokens
}

// totalTokens estimates the full rendered document.
func (s *Store) totalTokens(ws *schema.WorkingSet) int {
	total := s.baseLoadTokens(ws)
	total += tokenest.String(ws.Status)
	total += tokenest.String(ws.CurrentStage)
	total += tokenest.String(ws.NextAction)
	total += tokenest.String(ws.LastActionSummary)
	for _, blocker := range ws.Blockers {
		total += tokenest.String(blocker)
	}
	for _, note := range ws.SlidingContext {
		total += tokenest.String(note.Content) + slidingItemOverheadTokens
	}
	return total
}

// enforceLimits applies the eviction policy in order: pinned item
// cap, base-load feasibility, sliding eviction by (priority desc,
// timestamp desc), final total check, re-validation. Dropped sliding
// notes are discarded silently; the outcome is deterministic for
// identical inputs.
func (s *Store) enforceLimits(ws *schema.WorkingSet) error {
	// 1. Cap pinned_context to the most recently appended N,
	// preserving insertion order of the tail.
	if extra := len(ws.PinnedContext) - s.config.PinnedMaxItems; extra > 0 {
		ws.PinnedContext = append([]schema.PinnedNote(nil), ws.PinnedContext[extra:]...)
	}

	// 2. Pinned content and mission-critical fields can never be
	// evicted; a base load over budget is unrecoverable here.
	base := s.baseLoadTokens(ws)
	if base > s.config.MaxTokens {
		return &SizeExceededError{Tokens: base, MaxTokens: s.config.MaxTokens, Base: true}
	}

	// 3. Priority descending, timestamp descending; stable, so equal
	// notes keep their insertion order.
	sorted := append([]schema.SlidingNote(nil), ws.SlidingContext...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	// 4. Greedy admission until the next note would overflow. No
	// partial notes, no reordering once decided.
	remaining := s.config.MaxTokens - base
	kept := make([]schema.SlidingNote, 0, len(sorted))
	used := 0
	for _, note := range sorted {
		cost := tokenest.String(note.Content) + slidingItemOverheadTokens
		if used+cost > remaining {
			break
		}
		kept = append(kept, note)
		used += cost
	}

	// 5. Replace; dropped notes are gone.
	ws.SlidingContext = kept

	// 6. Fail closed if the full document still overflows.
	if total := s.totalTokens(ws); total > s.config.MaxTokens {
		return &SizeExceededError{Tokens: total, MaxTokens: s.config.MaxTokens}
	}

	// 7. A schema violation after enforcement is an internal
	// invariant failure, not a user error.
	return ws.Validate()
}
