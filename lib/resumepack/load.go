// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package resumepack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/contextfold/contextfold/lib/rundir"
	"github.com/contextfold/contextfold/lib/schema"
)

// LoadOptions configures pack restoration.
type LoadOptions struct {
	// PackPath is a pack directory or an archive file (recognized by
	// its .tar.zst / .tar.lz4 / .age suffix).
	PackPath string

	// TargetRunDir is where the run is materialized. When NewRunID
	// is empty and the target's base name is not the minted run id,
	// the directory is renamed to match it.
	TargetRunDir string

	// NewRunID fixes the restored run's id. Empty means mint one and
	// rewrite it into the restored working set.
	NewRunID string

	// Identity is the age X25519 identity for sealed archives.
	Identity string

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// LoadResult describes a restored run.
type LoadResult struct {
	RunID      string
	RunDir     rundir.RunDir
	WorkingSet *schema.WorkingSet
}

// Load restores a resume pack into a run directory. The manifest is
// schema-validated and every bundled file's hash is verified before a
// single byte lands in the target: a corrupted or tampered pack is
// never partially trusted.
func Load(options LoadOptions) (*LoadResult, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	packDir := options.PackPath
	if isArchivePath(packDir) {
		staging, err := os.MkdirTemp(filepath.Dir(options.TargetRunDir), "pack-extract-*")
		if err != nil {
			return nil, fmt.Errorf("resumepack: creating extraction directory: %w", err)
		}
		defer os.RemoveAll(staging)
		if err := extractArchive(options.PackPath, staging, options.Identity); err != nil {
			return nil, err
		}
		packDir = staging
	}

	manifest, err := readManifest(packDir)
	if err != nil {
		return nil, err
	}

	// Verify everything up front. No partial materialization: the
	// target is untouched until the whole pack checks out.
	relPaths := make([]string, 0, len(manifest.Files))
	for relPath := range manifest.Files {
		relPaths = append(relPaths, relPath)
	}
	sort.Strings(relPaths)
	for _, relPath := range relPaths {
		sourcePath := filepath.Join(packDir, filepath.FromSlash(relPath))
		if _, err := os.Stat(sourcePath); err != nil {
			return nil, &IntegrityError{RelPath: relPath, ExpectedHash: manifest.Files[relPath]}
		}
		digest, err := hashFile(sourcePath)
		if err != nil {
			return nil, err
		}
		if digest != manifest.Files[relPath] {
			return nil, &IntegrityError{RelPath: relPath, ExpectedHash: manifest.Files[relPath], ActualHash: digest}
		}
	}

	// A pack without a working set is not a valid pack.
	wsRelPath := rundir.WorkingSetRelPath()
	if _, ok := manifest.Files[wsRelPath]; !ok {
		return nil, ErrNoWorkingSet
	}
	ws, err := parseWorkingSet(filepath.Join(packDir, wsRelPath))
	if err != nil {
		return nil, err
	}

	// Materialize the standard layout and copy the verified files.
	target := rundir.New(options.TargetRunDir)
	if err := target.Ensure(); err != nil {
		return nil, err
	}
	for _, relPath := range relPaths {
		sourcePath := filepath.Join(packDir, filepath.FromSlash(relPath))
		destPath := filepath.Join(target.Root, filepath.FromSlash(relPath))
		if err := copyFile(sourcePath, destPath); err != nil {
			return nil, err
		}
	}

	runID := options.NewRunID
	if runID == "" {
		runID = schema.NewID("run")
	}
	if ws.RunID != runID {
		ws.RunID = runID
		if err := rewriteWorkingSet(target.WorkingSetPath(), ws); err != nil {
			return nil, err
		}
	}

	// When the target was a generic staging path, relocate it to be
	// named after the run id. An existing directory under that name
	// belongs to another run and must not be clobbered.
	if filepath.Base(target.Root) != runID {
		finalRoot := filepath.Join(filepath.Dir(target.Root), runID)
		if _, err := os.Stat(finalRoot); err == nil {
			return nil, fmt.Errorf("resumepack: run directory %s already exists", finalRoot)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("resumepack: checking %s: %w", finalRoot, err)
		}
		if err := os.Rename(target.Root, finalRoot); err != nil {
			return nil, fmt.Errorf("resumepack: relocating run directory: %w", err)
		}
		target = rundir.New(finalRoot)
	}

	logger.Info("resume pack loaded",
		"pack_id", manifest.PackID,
		"run_id", runID,
		"files", len(manifest.Files),
	)
	return &LoadResult{RunID: runID, RunDir: target, WorkingSet: ws}, nil
}

// isArchivePath reports whether path names an archive rather than a
// pack directory.
func isArchivePath(path string) bool {
	trimmed := strings.TrimSuffix(path, ".age")
	return strings.HasSuffix(trimmed, ".tar.zst") || strings.HasSuffix(trimmed, ".tar.lz4")
}

// readManifest reads and schema-validates the pack manifest.
func readManifest(packDir string) (*schema.PackManifest, error) {
	data, err := os.ReadFile(filepath.Join(packDir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("resumepack: reading manifest: %w", err)
	}
	var manifest schema.PackManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &schema.ValidationError{Doc: "resume_pack_manifest", Reason: fmt.Sprintf("manifest is not valid JSON: %v", err)}
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// parseWorkingSet reads and validates the packed working set.
func parseWorkingSet(path string) (*schema.WorkingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resumepack: reading working set: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var ws schema.WorkingSet
	if err := decoder.Decode(&ws); err != nil {
		return nil, &schema.ValidationError{Doc: "working_set", Reason: fmt.Sprintf("packed working set is invalid: %v", err)}
	}
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return &ws, nil
}

// rewriteWorkingSet persists the working set with its new run id.
func rewriteWorkingSet(path string, ws *schema.WorkingSet) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("resumepack: encoding working set: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("resumepack: rewriting working set: %w", err)
	}
	return nil
}
