// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/contextfold/contextfold/lib/clock"
	"github.com/contextfold/contextfold/lib/schema"
)

// InMemoryStore is the reference Store: items held in insertion order
// in process memory. Suited to tests and single-run tooling; nothing
// survives the process.
type InMemoryStore struct {
	clock  clock.Clock
	ranker Ranker
	logger *slog.Logger

	mu       sync.Mutex
	items    []schema.MemoryItem
	position map[string]int
	batches  map[string]stagedBatch
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	config := applyOptions(opts)
	return &InMemoryStore{
		clock:    config.clock,
		ranker:   config.ranker,
		logger:   config.logger,
		position: make(map[string]int),
		batches:  make(map[string]stagedBatch),
	}
}

// Search implements Store.
func (s *InMemoryStore) Search(ctx context.Context, query string, filters Filters, topK int) ([]schema.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []schema.MemoryItem
	for i := range s.items {
		if s.items[i].Status != schema.MemoryStatusActive {
			continue
		}
		if !filters.Match(&s.items[i]) {
			continue
		}
		candidates = append(candidates, s.items[i])
	}
	return rankAndLimit(s.ranker, query, candidates, topK), nil
}

// Propose implements Store.
func (s *InMemoryStore) Propose(ctx context.Context, requests []schema.MemoryChangeRequest, scopeFilters Filters) (string, error) {
	staged, err := stageRequests(requests)
	if err != nil {
		return "", err
	}
	batchID := schema.NewID("batch")

	s.mu.Lock()
	s.batches[batchID] = stagedBatch{requests: staged, scopeFilters: scopeFilters}
	s.mu.Unlock()

	s.logger.Debug("memory batch staged", "batch_id", batchID, "requests", len(staged))
	return batchID, nil
}

// Commit implements Store.
func (s *InMemoryStore) Commit(ctx context.Context, batchID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, staged := s.batches[batchID]
	if !staged {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBatch, batchID)
	}
	// Consume the batch first: a failed materialization must not make
	// the batch retryable.
	delete(s.batches, batchID)

	now := schema.FormatTime(s.clock.Now())
	committed := []string{}
	for i := range batch.requests {
		request := &batch.requests[i]
		if request.Op == schema.MemoryOpNoop {
			continue
		}
		item, err := materialize(request, now)
		if err != nil {
			return nil, err
		}
		if request.Op == schema.MemoryOpSupersede {
			for _, supersededID := range request.Supersedes {
				s.tombstone(supersededID, now)
			}
		}
		if request.Op == schema.MemoryOpDeprecate {
			s.tombstone(request.TargetMemoryID, now)
		}
		s.position[item.MemoryID] = len(s.items)
		s.items = append(s.items, *item)
		committed = append(committed, item.MemoryID)
	}

	s.logger.Info("memory batch committed", "batch_id", batchID, "new_items", len(committed))
	return committed, nil
}

// tombstone marks an item deprecated. Missing ids are skipped, not
// errors.
func (s *InMemoryStore) tombstone(memoryID, now string) {
	index, exists := s.position[memoryID]
	if !exists {
		return
	}
	s.items[index].Status = schema.MemoryStatusDeprecated
	s.items[index].UpdatedAt = now
}

// rankAndLimit sorts candidates by descending ranker score, keeping
// insertion order on ties, and truncates to topK.
func rankAndLimit(ranker Ranker, query string, candidates []schema.MemoryItem, topK int) []schema.MemoryItem {
	if len(candidates) == 0 {
		return []schema.MemoryItem{}
	}
	scores := ranker.Score(query, candidates)

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if topK > 0 && len(order) > topK {
		order = order[:topK]
	}

	results := make([]schema.MemoryItem, len(order))
	for i, index := range order {
		results[i] = candidates[index]
	}
	return results
}
