// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokenest estimates prompt token counts for budget
// enforcement. The heuristic is ceil(characters / 4) — deterministic,
// allocation-free for strings, and intentionally approximate. Callers
// may rely on determinism and monotonicity, never on model accuracy.
// Wrap a real tokenizer at integration time if exact counts matter.
package tokenest

import (
	"strconv"
	"unicode/utf8"
)

// String estimates the token cost of a string: ceil(characters / 4).
// Characters are Unicode code points, not bytes, so multi-byte text
// is not over-charged.
func String(s string) int {
	if s == "" {
		return 0
	}
	length := utf8.RuneCountInString(s)
	return (length + 3) / 4
}

// Value estimates the token cost of a JSON-compatible value tree.
// Strings cost String(s); numbers and booleans cost their decimal
// rendering; maps cost the sum of key and value costs; sequences cost
// the sum of element costs; nil costs zero.
func Value(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return String(v)
	case bool:
		return String(strconv.FormatBool(v))
	case int:
		return String(strconv.Itoa(v))
	case int64:
		return String(strconv.FormatInt(v, 10))
	case float64:
		return String(strconv.FormatFloat(v, 'g', -1, 64))
	case map[string]any:
		total := 0
		for key, child := range v {
			total += String(key) + Value(child)
		}
		return total
	case []any:
		total := 0
		for _, child := range v {
			total += Value(child)
		}
		return total
	case []string:
		total := 0
		for _, child := range v {
			total += String(child)
		}
		return total
	default:
		return 0
	}
}
