// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package workingset

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no working set document exists
// at the store's path.
var ErrNotFound = errors.New("workingset: document not found")

// LockConflictError is the optimistic-concurrency rejection: the
// patch's expected sequence did not match the stored document. The
// caller should reload and resubmit; the store never retries.
type LockConflictError struct {
	ExpectedSeq int64
	CurrentSeq  int64
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("workingset: lock conflict: expected_seq=%d current_seq=%d", e.ExpectedSeq, e.CurrentSeq)
}

// ProtectedFieldError reports a patch that attempted to set an
// immutable field.
type ProtectedFieldError struct {
	Field string
}

func (e *ProtectedFieldError) Error() string {
	return fmt.Sprintf("workingset: immutable field in patch: %s", e.Field)
}

// SizeExceededError reports a document that cannot fit the token
// budget. When Base is true, the non-evictable base load (objective,
// acceptance criteria, constraints, pinned content) alone exceeds the
// budget — unrecoverable by eviction.
type SizeExceededError struct {
	Tokens    int
	MaxTokens int
	Base      bool
}

func (e *SizeExceededError) Error() string {
	kind := "total_tokens"
	if e.Base {
		kind = "base_load_tokens"
	}
	return fmt.Sprintf("workingset: %s=%d exceeds ws_max_tokens=%d", kind, e.Tokens, e.MaxTokens)
}
