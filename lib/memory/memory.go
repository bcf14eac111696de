// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is the long-term memory store: facts that outlive a
// single run, mutated through a two-phase propose/commit protocol.
//
// Propose validates a batch of change requests atomically and stages
// it under a fresh batch id; nothing staged is visible to Search.
// Commit consumes the batch exactly once, materializing new items and
// tombstoning superseded or deprecated ones. Items are never deleted,
// only marked deprecated.
//
// Two implementations share the contract: [InMemoryStore], the
// process-local reference, and [SQLiteStore], which persists items in
// a database file. Staged batches are process-local in both: a batch
// only gates one short propose-then-commit window, so it does not
// survive the process.
package memory

import (
	"context"
	"log/slog"

	"github.com/contextfold/contextfold/lib/clock"
	"github.com/contextfold/contextfold/lib/schema"
)

// Store is the memory capability contract. Implementations must be
// safe for concurrent use.
type Store interface {
	// Search returns up to topK active items matching all set filter
	// fields, best first. Ranking is the configured Ranker's concern;
	// ties keep insertion order.
	Search(ctx context.Context, query string, filters Filters, topK int) ([]schema.MemoryItem, error)

	// Propose validates every change request and stages the batch
	// under a fresh batch id. One invalid request rejects the whole
	// batch. Scope filters are attached to the staged batch as a
	// record of the proposing context; they never alter the requests
	// or the items they materialize.
	Propose(ctx context.Context, requests []schema.MemoryChangeRequest, scopeFilters Filters) (string, error)

	// Commit consumes a staged batch: the batch is removed whether or
	// not materialization succeeds, and a second commit of the same
	// id fails with ErrUnknownBatch. Returns the ids of newly
	// materialized items in request order.
	Commit(ctx context.Context, batchID string) ([]string, error)
}

// Filters narrows a search or scopes a proposed batch. Empty fields
// are ignored; set fields must match exactly.
type Filters struct {
	Type      string
	Scope     string
	UserID    string
	ProjectID string
}

// Match reports whether item satisfies every set filter field.
func (f Filters) Match(item *schema.MemoryItem) bool {
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.Scope != "" && item.Scope != f.Scope {
		return false
	}
	if f.UserID != "" && item.UserID != f.UserID {
		return false
	}
	if f.ProjectID != "" && item.ProjectID != f.ProjectID {
		return false
	}
	return true
}

// Option configures a store at construction time.
type Option func(*options)

type options struct {
	clock  clock.Clock
	ranker Ranker
	logger *slog.Logger
}

func applyOptions(opts []Option) options {
	config := options{
		clock:  clock.Real(),
		ranker: OverlapRanker{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// WithRanker replaces the default overlap ranker.
func WithRanker(ranker Ranker) Option {
	return func(o *options) { o.ranker = ranker }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// stagedBatch is one proposed, not yet committed, batch. The scope
// filters that accompanied the proposal ride along for the record but
// take no part in materialization.
type stagedBatch struct {
	requests     []schema.MemoryChangeRequest
	scopeFilters Filters
}

// stageRequests validates requests and returns the staged copies. The
// first invalid request fails the whole batch.
func stageRequests(requests []schema.MemoryChangeRequest) ([]schema.MemoryChangeRequest, error) {
	staged := make([]schema.MemoryChangeRequest, len(requests))
	for i, request := range requests {
		if err := request.Validate(); err != nil {
			return nil, err
		}
		staged[i] = request
	}
	return staged, nil
}

// materialize builds the committed item for a non-noop request. A
// deprecate request materializes an already-deprecated item recording
// the retraction. now is the already formatted commit timestamp.
func materialize(request *schema.MemoryChangeRequest, now string) (*schema.MemoryItem, error) {
	memoryID := request.MemoryID
	if memoryID == "" {
		memoryID = schema.NewID("mem")
	}
	confidence := request.Confidence
	if confidence == 0 {
		confidence = schema.DefaultMemoryConfidence
	}
	status := schema.MemoryStatusActive
	if request.Op == schema.MemoryOpDeprecate {
		status = schema.MemoryStatusDeprecated
	}
	item := &schema.MemoryItem{
		SchemaVersion: schema.Version,
		MemoryID:      memoryID,
		Type:          request.Type,
		Scope:         request.Scope,
		UserID:        request.UserID,
		ProjectID:     request.ProjectID,
		Content:       request.Content,
		Confidence:    confidence,
		Status:        status,
		Supersedes:    append([]string{}, request.Supersedes...),
		SourceRefs:    append([]string{}, request.SourceRefs...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}
