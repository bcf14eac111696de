// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/contextfold/contextfold/lib/clock"
	"github.com/contextfold/contextfold/lib/memory"
	"github.com/contextfold/contextfold/lib/schema"
)

var testStart = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

// forEachStore runs a contract test against both implementations.
func forEachStore(t *testing.T, test func(t *testing.T, store memory.Store)) {
	t.Helper()

	t.Run("inmemory", func(t *testing.T) {
		store := memory.NewInMemoryStore(memory.WithClock(clock.Fake(testStart)))
		test(t, store)
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := memory.NewSQLiteStore(
			filepath.Join(t.TempDir(), "memory.db"),
			memory.WithClock(clock.Fake(testStart)),
		)
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
		test(t, store)
	})
}

// commitAdd stages and commits a single add request, returning the new
// memory id.
func commitAdd(t *testing.T, store memory.Store, request schema.MemoryChangeRequest) string {
	t.Helper()
	ctx := context.Background()

	batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{request}, memory.Filters{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	committed, err := store.Commit(ctx, batchID)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(committed) != 1 {
		t.Fatalf("committed %d items, want 1", len(committed))
	}
	return committed[0]
}

func TestStagedInvisibleUntilCommit(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{{
			Op:      schema.MemoryOpAdd,
			Type:    "preference",
			Scope:   "user",
			Content: "user prefers short commit messages",
		}}, memory.Filters{})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}

		results, err := store.Search(ctx, "commit messages", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("staged item visible to search: %d results", len(results))
		}

		committed, err := store.Commit(ctx, batchID)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(committed) != 1 {
			t.Fatalf("committed %d items, want 1", len(committed))
		}

		results, err = store.Search(ctx, "commit messages", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search after commit: %v", err)
		}
		if len(results) != 1 || results[0].MemoryID != committed[0] {
			t.Fatalf("search after commit = %v, want the committed item", results)
		}

		// Exactly-once consumption: replay fails.
		if _, err := store.Commit(ctx, batchID); !errors.Is(err, memory.ErrUnknownBatch) {
			t.Fatalf("replayed commit error = %v, want ErrUnknownBatch", err)
		}
	})
}

func TestCommitUnknownBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		_, err := store.Commit(context.Background(), "batch_never_staged")
		if !errors.Is(err, memory.ErrUnknownBatch) {
			t.Fatalf("error = %v, want ErrUnknownBatch", err)
		}
	})
}

func TestProposeRejectsWholeBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		_, err := store.Propose(ctx, []schema.MemoryChangeRequest{
			{
				Op:      schema.MemoryOpAdd,
				Type:    "fact",
				Scope:   "project",
				Content: "a perfectly valid request",
			},
			{
				Op:    schema.MemoryOpAdd,
				Type:  "fact",
				Scope: "project",
				// Missing content.
			},
		}, memory.Filters{})
		if !schema.IsValidationError(err) {
			t.Fatalf("error = %v, want ValidationError", err)
		}

		// The valid half must not have been staged either.
		results, err := store.Search(ctx, "perfectly valid request", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("rejected batch leaked %d items into the store", len(results))
		}
	})
}

func TestSupersedeTombstonesTarget(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		oldID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op:      schema.MemoryOpAdd,
			Type:    "fact",
			Scope:   "project",
			Content: "deploys happen on fridays",
		})

		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{{
			Op:         schema.MemoryOpSupersede,
			Type:       "fact",
			Scope:      "project",
			Content:    "deploys happen on tuesdays now",
			Supersedes: []string{oldID},
		}}, memory.Filters{})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		committed, err := store.Commit(ctx, batchID)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(committed) != 1 {
			t.Fatalf("committed %d items, want 1", len(committed))
		}

		results, err := store.Search(ctx, "deploys", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		for _, item := range results {
			if item.MemoryID == oldID {
				t.Fatalf("superseded item %s still active", oldID)
			}
		}
		if len(results) != 1 || results[0].MemoryID != committed[0] {
			t.Fatalf("active search = %v, want only the superseding item", results)
		}
		if len(results[0].Supersedes) != 1 || results[0].Supersedes[0] != oldID {
			t.Fatalf("supersedes = %v, want [%s]", results[0].Supersedes, oldID)
		}
	})
}

func TestSupersedeMissingTargetSkipped(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{{
			Op:         schema.MemoryOpSupersede,
			Type:       "fact",
			Scope:      "project",
			Content:    "replaces something that never existed",
			Supersedes: []string{"mem_nonexistent"},
		}}, memory.Filters{})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		committed, err := store.Commit(ctx, batchID)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(committed) != 1 {
			t.Fatalf("committed %d items, want 1", len(committed))
		}
	})
}

func TestDeprecateTombstonesTargetAndMaterializes(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		targetID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op:      schema.MemoryOpAdd,
			Type:    "lesson",
			Scope:   "project",
			Content: "the flaky test can be ignored",
		})

		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{{
			Op:             schema.MemoryOpDeprecate,
			Type:           "lesson",
			Scope:          "project",
			Content:        "the flaky test was a real failure all along",
			TargetMemoryID: targetID,
		}}, memory.Filters{})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		committed, err := store.Commit(ctx, batchID)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		// The retraction record is materialized and its id returned,
		// but it is born deprecated.
		if len(committed) != 1 {
			t.Fatalf("deprecate committed %d ids, want 1", len(committed))
		}
		if committed[0] == targetID {
			t.Fatalf("committed id %s is the target, want a new item", committed[0])
		}

		results, err := store.Search(ctx, "flaky test", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("deprecate left active items behind: %v", results)
		}
	})
}

func TestDeprecateRequiresItemFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		_, err := store.Propose(context.Background(), []schema.MemoryChangeRequest{{
			Op:             schema.MemoryOpDeprecate,
			TargetMemoryID: "mem_target",
			// No type, scope, or content for the retraction record.
		}}, memory.Filters{})
		if !schema.IsValidationError(err) {
			t.Fatalf("error = %v, want ValidationError", err)
		}
	})
}

func TestNoopMaterializesNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{
			{Op: schema.MemoryOpNoop},
		}, memory.Filters{})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		committed, err := store.Commit(ctx, batchID)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(committed) != 0 {
			t.Fatalf("noop committed %d items, want 0", len(committed))
		}
	})
}

func TestDefaultConfidenceApplied(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		memoryID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op:      schema.MemoryOpAdd,
			Type:    "fact",
			Scope:   "project",
			Content: "confidence left unset",
		})

		results, err := store.Search(ctx, "confidence", memory.Filters{}, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].MemoryID != memoryID {
			t.Fatalf("search = %v, want the committed item", results)
		}
		if results[0].Confidence != schema.DefaultMemoryConfidence {
			t.Fatalf("confidence = %g, want %g", results[0].Confidence, schema.DefaultMemoryConfidence)
		}
		if results[0].CreatedAt != schema.FormatTime(testStart) {
			t.Fatalf("created_at = %q, want %q", results[0].CreatedAt, schema.FormatTime(testStart))
		}
	})
}

func TestScopeFiltersDoNotAlterItems(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		// One request names its own user, one leaves it empty. The
		// filters attached at propose time must not fill the gap.
		batchID, err := store.Propose(ctx, []schema.MemoryChangeRequest{
			{
				Op: schema.MemoryOpAdd, Type: "preference", Scope: "user",
				UserID:  "user_ada",
				Content: "prefers dark mode everywhere",
			},
			{
				Op: schema.MemoryOpAdd, Type: "preference", Scope: "user",
				Content: "prefers tabs over spaces",
			},
		}, memory.Filters{UserID: "user_ada", ProjectID: "proj_billing"})
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		if _, err := store.Commit(ctx, batchID); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		results, err := store.Search(ctx, "prefers", memory.Filters{UserID: "user_ada"}, 10)
		if err != nil {
			t.Fatalf("Search by user: %v", err)
		}
		if len(results) != 1 || results[0].UserID != "user_ada" {
			t.Fatalf("search by user = %v, want only the explicitly owned item", results)
		}

		results, err = store.Search(ctx, "prefers", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search unfiltered: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("unfiltered search returned %d items, want 2", len(results))
		}
		for _, item := range results {
			if item.ProjectID != "" {
				t.Fatalf("item %s project_id = %q, want empty (filters must not stamp)",
					item.MemoryID, item.ProjectID)
			}
		}
	})
}

func TestSearchFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "preference", Scope: "user",
			Content: "review requests go out before noon",
		})
		wantID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "review requests require two approvers",
		})

		results, err := store.Search(ctx, "review requests",
			memory.Filters{Type: "fact", Scope: "project"}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].MemoryID != wantID {
			t.Fatalf("filtered search = %v, want only %s", results, wantID)
		}
	})
}

func TestOverlapRankingOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		// Same confidence everywhere, so whole-word overlap decides.
		weakID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "exporter retries", Confidence: 0.5,
		})
		strongID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "exporter retries use backoff", Confidence: 0.5,
		})
		commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "something else entirely", Confidence: 0.5,
		})

		results, err := store.Search(ctx, "exporter retries backoff", memory.Filters{}, 2)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("search returned %d items, want 2", len(results))
		}
		if results[0].MemoryID != strongID || results[1].MemoryID != weakID {
			t.Fatalf("ranking = [%s %s], want [%s %s]",
				results[0].MemoryID, results[1].MemoryID, strongID, weakID)
		}
	})
}

func TestRankingTiesKeepInsertionOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		firstID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "identical overlap content", Confidence: 0.5,
		})
		secondID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "identical overlap content", Confidence: 0.5,
		})

		results, err := store.Search(ctx, "identical overlap", memory.Filters{}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("search returned %d items, want 2", len(results))
		}
		if results[0].MemoryID != firstID || results[1].MemoryID != secondID {
			t.Fatalf("tie order = [%s %s], want insertion order [%s %s]",
				results[0].MemoryID, results[1].MemoryID, firstID, secondID)
		}
	})
}

func TestConfidenceBreaksOverlapTies(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "staging database refresh cadence", Confidence: 0.3,
		})
		confidentID := commitAdd(t, store, schema.MemoryChangeRequest{
			Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
			Content: "staging database refresh window", Confidence: 0.9,
		})

		results, err := store.Search(ctx, "staging database refresh", memory.Filters{}, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].MemoryID != confidentID {
			t.Fatalf("top result = %v, want the higher-confidence item %s", results, confidentID)
		}
	})
}

func TestTopKLimitsResults(t *testing.T) {
	forEachStore(t, func(t *testing.T, store memory.Store) {
		ctx := context.Background()

		for range 5 {
			commitAdd(t, store, schema.MemoryChangeRequest{
				Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
				Content: "shared observation about caching",
			})
		}
		results, err := store.Search(ctx, "caching", memory.Filters{}, 3)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("topK 3 returned %d items", len(results))
		}
	})
}

func TestBM25RankerOption(t *testing.T) {
	store := memory.NewInMemoryStore(
		memory.WithClock(clock.Fake(testStart)),
		memory.WithRanker(memory.BM25Ranker{}),
	)
	ctx := context.Background()

	commitAdd(t, store, schema.MemoryChangeRequest{
		Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
		Content: "unrelated note about lunch plans",
	})
	wantID := commitAdd(t, store, schema.MemoryChangeRequest{
		Op: schema.MemoryOpAdd, Type: "lesson", Scope: "project",
		Content: "rollback procedure: rollback the deploy before paging",
	})

	results, err := store.Search(ctx, "rollback deploy", memory.Filters{}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].MemoryID != wantID {
		t.Fatalf("top result = %v, want %s", results, wantID)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	store, err := memory.NewSQLiteStore(path, memory.WithClock(clock.Fake(testStart)))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	memoryID := commitAdd(t, store, schema.MemoryChangeRequest{
		Op: schema.MemoryOpAdd, Type: "fact", Scope: "project",
		Content: "the database outlives the process",
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := memory.NewSQLiteStore(path, memory.WithClock(clock.Fake(testStart)))
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	results, err := reopened.Search(ctx, "database outlives", memory.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(results) != 1 || results[0].MemoryID != memoryID {
		t.Fatalf("search after reopen = %v, want %s", results, memoryID)
	}
}
