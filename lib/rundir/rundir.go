// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package rundir defines the on-disk layout of one run: the directory
// contract shared by the state store, ledger, checkpoint builder, and
// snapshot engine.
//
//	<root>/
//	  state/     working_set.v2.1.json
//	  ledger/    run.v2.1.jsonl
//	  episodes/  ep_<id>.v2.1.cbor (one file per episode)
//	  resume/    pack outputs
//	  artifacts/ opaque, untouched by the engine
package rundir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Canonical file names inside a run directory.
const (
	WorkingSetFile = "working_set.v2.1.json"
	LedgerFile     = "run.v2.1.jsonl"

	// EpisodeSuffix is the file suffix of persisted episodes.
	EpisodeSuffix = ".v2.1.cbor"
)

// RunDir is the root directory of one run.
type RunDir struct {
	Root string
}

// New wraps an existing or prospective run directory root.
func New(root string) RunDir {
	return RunDir{Root: root}
}

// ForRun returns the run directory for runID under baseDir.
func ForRun(baseDir, runID string) RunDir {
	return RunDir{Root: filepath.Join(baseDir, runID)}
}

// StateDir returns the state subdirectory.
func (r RunDir) StateDir() string { return filepath.Join(r.Root, "state") }

// LedgerDir returns the ledger subdirectory.
func (r RunDir) LedgerDir() string { return filepath.Join(r.Root, "ledger") }

// EpisodesDir returns the episodes subdirectory.
func (r RunDir) EpisodesDir() string { return filepath.Join(r.Root, "episodes") }

// ResumeDir returns the resume pack output subdirectory.
func (r RunDir) ResumeDir() string { return filepath.Join(r.Root, "resume") }

// ArtifactsDir returns the opaque artifacts subdirectory.
func (r RunDir) ArtifactsDir() string { return filepath.Join(r.Root, "artifacts") }

// WorkingSetPath returns the canonical working set document path.
func (r RunDir) WorkingSetPath() string {
	return filepath.Join(r.StateDir(), WorkingSetFile)
}

// LedgerPath returns the canonical ledger file path.
func (r RunDir) LedgerPath() string {
	return filepath.Join(r.LedgerDir(), LedgerFile)
}

// WorkingSetRelPath is the working set path relative to the run root,
// as recorded in resume pack manifests.
func WorkingSetRelPath() string { return filepath.Join("state", WorkingSetFile) }

// LedgerRelPath is the ledger path relative to the run root.
func LedgerRelPath() string { return filepath.Join("ledger", LedgerFile) }

// Ensure creates the full run directory tree.
func (r RunDir) Ensure() error {
	for _, dir := range []string{
		r.StateDir(), r.LedgerDir(), r.EpisodesDir(), r.ResumeDir(), r.ArtifactsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("rundir: creating %s: %w", dir, err)
		}
	}
	return nil
}
