// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"regexp"
	"strings"

	"github.com/contextfold/contextfold/lib/bm25"
	"github.com/contextfold/contextfold/lib/schema"
)

// Ranker scores filter-matched candidate items against a query. The
// store sorts by descending score with a stable sort, so equal scores
// keep insertion order regardless of ranker.
type Ranker interface {
	// Score returns one score per item, index-aligned with items.
	Score(query string, items []schema.MemoryItem) []float64
}

// wordPattern splits text into lowercase word runs for the overlap
// ranker.
var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// OverlapRanker is the reference ranking: the count of distinct query
// terms occurring as whole words in the item's content, plus the
// item's confidence. Deliberately naive and fully deterministic; it is
// a stand-in for a pluggable strategy, not a retrieval-quality
// endpoint.
type OverlapRanker struct{}

// Score implements Ranker.
func (OverlapRanker) Score(query string, items []schema.MemoryItem) []float64 {
	queryTerms := make(map[string]bool)
	for _, term := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		queryTerms[term] = true
	}

	scores := make([]float64, len(items))
	for i := range items {
		contentWords := make(map[string]bool)
		for _, word := range wordPattern.FindAllString(strings.ToLower(items[i].Content), -1) {
			contentWords[word] = true
		}
		overlap := 0
		for term := range queryTerms {
			if contentWords[term] {
				overlap++
			}
		}
		scores[i] = float64(overlap) + items[i].Confidence
	}
	return scores
}

// BM25Ranker ranks with Okapi BM25 over item content and type. Built
// per call: candidate sets are small, and the index must reflect
// exactly the filtered items.
type BM25Ranker struct{}

// Score implements Ranker.
func (BM25Ranker) Score(query string, items []schema.MemoryItem) []float64 {
	documents := make([]bm25.Document, len(items))
	for i := range items {
		documents[i] = bm25.Document{
			Name: items[i].MemoryID,
			Fields: []bm25.Field{
				{Text: items[i].Content, Weight: 3},
				{Text: items[i].Type, Weight: 1},
				{Text: items[i].Scope, Weight: 1},
			},
		}
	}
	index := bm25.New(documents)

	byID := make(map[string]float64)
	for _, result := range index.Search(query, 0) {
		// Duplicate ids keep the best score; ids are unique in
		// practice.
		if _, seen := byID[result.Name]; !seen {
			byID[result.Name] = result.Score
		}
	}
	scores := make([]float64, len(items))
	for i := range items {
		scores[i] = byID[items[i].MemoryID]
	}
	return scores
}
