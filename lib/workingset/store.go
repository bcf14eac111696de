// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package workingset is the state store: the single source of truth
// for one run's working set document, with crash-safe persistence,
// optimistic-concurrency patches, and deterministic budget eviction.
package workingset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/contextfold/contextfold/lib/schema"
)

// Config holds the store's limits and ambient collaborators.
type Config struct {
	// MaxTokens is the total token budget for the document.
	MaxTokens int

	// PinnedMaxItems caps pinned_context by item count.
	PinnedMaxItems int

	// Logger receives operational messages. Best-effort failures
	// (directory sync) are logged at Warn, never returned. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Store manages the working set document at a fixed path.
//
// Patches never block: conflicting writers race to
// read-modify-persist and the loser receives a *LockConflictError.
type Store struct {
	path   string
	config Config
	logger *slog.Logger
}

// Identity is the immutable identity triple of a run.
type Identity struct {
	TaskID   string
	ThreadID string
	RunID    string
}

// NewStore creates a store for the document at path. The parent
// directory is created if needed.
func NewStore(path string, config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("workingset: creating state directory: %w", err)
	}
	return &Store{path: path, config: config, logger: logger}, nil
}

// Exists reports whether a working set document is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// CreateInitial builds, validates, and persists a new working set at
// update_seq 0. Eviction enforcement runs even on the empty document
// so an infeasible budget (base load over budget) is caught up front.
func (s *Store) CreateInitial(identity Identity, objective string, acceptanceCriteria, constraints []string, initialStage string) (*schema.WorkingSet, error) {
	if initialStage == "" {
		initialStage = "BOOT"
	}
	ws := &schema.WorkingSet{
		SchemaVersion:      schema.Version,
		UpdateSeq:          0,
		TaskID:             identity.TaskID,
		ThreadID:           identity.ThreadID,
		RunID:              identity.RunID,
		Status:             "BOOT",
		Objective:          objective,
		AcceptanceCriteria: append([]string(nil), acceptanceCriteria...),
		Constraints:        append([]string(nil), constraints...),
		CurrentStage:       initialStage,
		ArtifactRefs:       []string{},
		Blockers:           []string{},
		PinnedContext:      []schema.PinnedNote{},
		SlidingContext:     []schema.SlidingNote{},
	}
	if err := s.enforceLimits(ws); err != nil {
		return nil, err
	}
	if err := s.save(ws); err != nil {
		return nil, err
	}
	s.logger.Info("working set created",
		"run_id", identity.RunID,
		"path", s.path,
	)
	return ws, nil
}

// Load reads and validates the current working set. Returns
// ErrNotFound when no document exists. A stored document that fails
// validation is a corruption signal and is never silently repaired.
func (s *Store) Load() (*schema.WorkingSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("workingset: reading %s: %w", s.path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var ws schema.WorkingSet
	if err := decoder.Decode(&ws); err != nil {
		return nil, &schema.ValidationError{Doc: "working_set", Reason: fmt.Sprintf("stored document is not valid JSON: %v", err)}
	}
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return &ws, nil
}

// ApplyPatch validates the patch shape, checks the optimistic lock,
// applies the field replacements to a deep copy, enforces the token
// budget, and persists with update_seq incremented by exactly 1.
// On any failure the stored document is left byte-for-byte unchanged.
func (s *Store) ApplyPatch(patch *schema.Patch) (*schema.WorkingSet, error) {
	// Shape first: unknown patch fields are rejected before any
	// state is touched.
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	current, err := s.Load()
	if err != nil {
		return nil, err
	}

	if patch.ExpectedSeq != current.UpdateSeq {
		return nil, &LockConflictError{ExpectedSeq: patch.ExpectedSeq, CurrentSeq: current.UpdateSeq}
	}

	next := current.Clone()
	for field, value := range patch.Set {
		if schema.ProtectedField(field) {
			return nil, &ProtectedFieldError{Field: field}
		}
		if err := setField(next, field, value); err != nil {
			return nil, err
		}
	}

	if err := s.enforceLimits(next); err != nil {
		return nil, err
	}

	next.UpdateSeq = current.UpdateSeq + 1
	if err := s.save(next); err != nil {
		return nil, err
	}
	s.logger.Debug("patch applied",
		"run_id", next.RunID,
		"update_seq", next.UpdateSeq,
		"fields", len(patch.Set),
	)
	return next, nil
}

// setField replaces one working-set field from a patch value. The
// value is re-marshaled through JSON so list and note replacements
// are structurally checked per field, with unknown note fields
// rejected — the whole document is still re-validated afterwards.
func setField(ws *schema.WorkingSet, field string, value any) error {
	assign := func(target any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return &schema.ValidationError{Doc: "ws_patch", Reason: fmt.Sprintf("field %q: %v", field, err)}
		}
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(target); err != nil {
			return &schema.ValidationError{Doc: "ws_patch", Reason: fmt.Sprintf("field %q: %v", field, err)}
		}
		return nil
	}

	switch field {
	case "status":
		return assign(&ws.Status)
	case "current_stage":
		return assign(&ws.CurrentStage)
	case "next_action":
		return assign(&ws.NextAction)
	case "last_action_summary":
		return assign(&ws.LastActionSummary)
	case "artifact_refs":
		return assign(&ws.ArtifactRefs)
	case "blockers":
		return assign(&ws.Blockers)
	case "pinned_context":
		return assign(&ws.PinnedContext)
	case "sliding_context":
		return assign(&ws.SlidingContext)
	default:
		// Patch.Validate admits only the cases above.
		return &schema.ValidationError{Doc: "ws_patch", Reason: fmt.Sprintf("unknown patch field %q", field)}
	}
}

// save persists the document atomically: full write to a sibling
// temp file, fsync, rename over the canonical path, then best-effort
// directory sync. A failure at any point leaves the previously
// committed document intact.
func (s *Store) save(ws *schema.WorkingSet) error {
	if err := ws.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("workingset: encoding document: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(directory, "working_set-*.tmp")
	if err != nil {
		return fmt.Errorf("workingset: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("workingset: writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("workingset: syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("workingset: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("workingset: renaming into place: %w", err)
	}
	success = true

	// Directory sync makes the rename itself durable. It fails open:
	// the primary effect (the document at its canonical path) has
	// already succeeded.
	if dir, err := os.Open(directory); err == nil {
		if err := dir.Sync(); err != nil {
			s.logger.Warn("directory sync failed", "dir", directory, "error", err)
		}
		dir.Close()
	} else {
		s.logger.Warn("directory open for sync failed", "dir", directory, "error", err)
	}

	return nil
}
