// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package resumepack

import (
	"errors"
	"fmt"
)

// ErrNoWorkingSet is returned by Load for a pack that carries no
// working set document. Such a pack is not a valid resume pack.
var ErrNoWorkingSet = errors.New("resumepack: pack contains no working set")

// ErrManifestNotFound is returned by Load when the pack directory has
// no manifest file.
var ErrManifestNotFound = errors.New("resumepack: manifest not found")

// IntegrityError reports a bundled file that is missing or whose
// content hash does not match the manifest. A pack that fails
// integrity verification is never partially trusted: Load aborts
// before materializing anything.
type IntegrityError struct {
	// RelPath is the manifest-relative path of the offending file.
	RelPath string

	// ExpectedHash is the manifest's hash. ActualHash is empty when
	// the file is missing entirely.
	ExpectedHash string
	ActualHash   string
}

func (e *IntegrityError) Error() string {
	if e.ActualHash == "" {
		return fmt.Sprintf("resumepack: missing file in pack: %s", e.RelPath)
	}
	return fmt.Sprintf("resumepack: hash mismatch for %s: expected %s, got %s", e.RelPath, e.ExpectedHash, e.ActualHash)
}
