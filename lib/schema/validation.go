// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a structurally invalid document. Doc names
// the document kind ("working_set", "ledger_event", ...) and Reason
// describes the first violated constraint.
type ValidationError struct {
	Doc    string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Doc + ": " + e.Reason
}

// IsValidationError reports whether err is (or wraps) a
// *ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// invalid constructs a *ValidationError for the named document kind.
func invalid(doc, format string, args ...any) *ValidationError {
	return &ValidationError{Doc: doc, Reason: fmt.Sprintf(format, args...)}
}

// TimeLayout is the timestamp format used in all persisted documents:
// ISO 8601 in UTC with second precision.
const TimeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in the persisted timestamp format. Timestamps
// sort lexicographically in chronological order, which the eviction
// tiebreak and latest-episode selection rely on.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// NewID mints a random identifier of the form "prefix_<32 hex>".
// 16 bytes of entropy makes ids unguessable as well as unique, which
// the milestone token additionally depends on.
func NewID(prefix string) string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("schema: reading random bytes: " + err.Error())
	}
	return prefix + "_" + hex.EncodeToString(raw[:])
}
