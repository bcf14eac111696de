// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package bm25 scores documents against a query with the Okapi BM25
// ranking function. The memory store uses it as its relevance ranker:
// each memory item becomes one document with its content and type as
// weighted fields.
//
// The index is built once over the candidate set and is immutable, so
// it is safe for concurrent searches. Corpora here are small (a
// caller's filtered memory items, typically well under a thousand), so
// construction per search is cheap and nothing is persisted.
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Okapi parameters, standard values.
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

// tokenPattern splits text into alphanumeric runs.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Field is one weighted text field of a document. Weight repeats the
// field's tokens in the composite document; zero or negative skips
// the field.
type Field struct {
	Text   string
	Weight int
}

// Document is a named set of weighted fields. Name identifies the
// document in results and is not itself scored.
type Document struct {
	Name   string
	Fields []Field
}

// Result is one search hit. Score is unbounded; higher is more
// relevant.
type Result struct {
	Name  string
	Score float64
}

// Index is an immutable BM25 index over a document set.
type Index struct {
	documents []Document

	// termFrequencies[i][term] counts term occurrences in document
	// i's composite token stream; lengths[i] is that stream's size.
	termFrequencies []map[string]int
	lengths         []int
	averageLength   float64

	inverseDocumentFrequency map[string]float64
}

// New builds an index over documents. Construction is linear in the
// total token count.
func New(documents []Document) *Index {
	index := &Index{
		documents:                documents,
		termFrequencies:          make([]map[string]int, len(documents)),
		lengths:                  make([]int, len(documents)),
		inverseDocumentFrequency: make(map[string]float64),
	}

	documentFrequency := make(map[string]int)
	var totalLength int

	for i, document := range documents {
		tokens := compositeTokens(document)
		index.lengths[i] = len(tokens)
		totalLength += len(tokens)

		frequency := make(map[string]int)
		for _, token := range tokens {
			if frequency[token] == 0 {
				documentFrequency[token]++
			}
			frequency[token]++
		}
		index.termFrequencies[i] = frequency
	}

	if len(documents) > 0 {
		index.averageLength = float64(totalLength) / float64(len(documents))
	}

	// Terms present in every document would score negative under the
	// raw IDF formula; clamp them to a small positive contribution.
	documentCount := float64(len(documents))
	for term, frequency := range documentFrequency {
		idf := math.Log(1 + (documentCount-float64(frequency)+0.5)/(float64(frequency)+0.5))
		if idf < 0 {
			idf = paramEpsilon
		}
		index.inverseDocumentFrequency[term] = idf
	}
	return index
}

// Search returns up to limit documents with positive relevance to the
// query, best first. Ties keep index order, so ranking is
// deterministic for a fixed document set. A limit of zero or less
// means no cap.
func (index *Index) Search(query string, limit int) []Result {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type hit struct {
		position int
		score    float64
	}
	var hits []hit
	for i := range index.documents {
		if score := index.score(i, queryTokens); score > 0 {
			hits = append(hits, hit{position: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Name: index.documents[h.position].Name, Score: h.score}
	}
	return results
}

// score computes the BM25 score of one document against the query
// tokens.
func (index *Index) score(position int, queryTokens []string) float64 {
	frequency := index.termFrequencies[position]
	length := float64(index.lengths[position])

	var score float64
	for _, token := range queryTokens {
		idf, known := index.inverseDocumentFrequency[token]
		if !known {
			continue
		}
		tf := float64(frequency[token])
		if tf == 0 {
			continue
		}
		numerator := tf * (paramK1 + 1)
		denominator := tf + paramK1*(1-paramB+paramB*length/index.averageLength)
		score += idf * numerator / denominator
	}
	return score
}

// compositeTokens flattens a document into one token stream with each
// field's tokens repeated Weight times.
func compositeTokens(document Document) []string {
	var tokens []string
	for _, field := range document.Fields {
		if field.Weight <= 0 {
			continue
		}
		fieldTokens := Tokenize(field.Text)
		for range field.Weight {
			tokens = append(tokens, fieldTokens...)
		}
	}
	return tokens
}

// Tokenize lowercases text and splits it into alphanumeric tokens,
// dropping single-character noise.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, match := range matches {
		if len(match) >= 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}
