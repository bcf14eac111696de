// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package resumepack builds and restores portable, hash-verified
// archives of a run's durable artifacts: the working set document,
// the ledger, and the most recent episode, enumerated by a manifest
// of BLAKE3-256 content hashes.
//
// Loading is fail-closed: a pack with a missing file or a single
// flipped byte is rejected before anything is materialized into the
// target run directory.
package resumepack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/contextfold/contextfold/lib/episode"
	"github.com/contextfold/contextfold/lib/rundir"
	"github.com/contextfold/contextfold/lib/schema"
	"github.com/contextfold/contextfold/lib/version"
)

// ManifestFile is the manifest's file name inside a pack directory.
const ManifestFile = "manifest.v2.1.json"

// SnapshotOptions configures pack creation.
type SnapshotOptions struct {
	// RunDir is the source run directory.
	RunDir rundir.RunDir

	// OutputDir receives the pack directory (and archive). Typically
	// the run's resume/ subdirectory, but any directory works.
	OutputDir string

	// EngineVersions overrides the manifest's compatibility list.
	// Defaults to version.Compatible().
	EngineVersions []string

	// Pointers is the opaque bookmark map recorded in the manifest,
	// e.g. the last ledger sequence observed.
	Pointers map[string]any

	// Archive bundles the pack directory into a single portable
	// file.
	Archive bool

	// Compression selects the archive algorithm. Zero value is zstd.
	Compression Compression

	// Recipient, when set, seals the archive to this age X25519
	// recipient. Requires Archive.
	Recipient string

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Now supplies the manifest timestamp; defaults to time.Now.
	Now func() time.Time
}

// SnapshotResult describes a created pack.
type SnapshotResult struct {
	PackID       string
	PackDir      string
	ManifestPath string

	// ArchivePath is set when an archive was requested.
	ArchivePath string
}

// Snapshot collects whichever of the run's durable artifacts exist —
// a brand-new run may have no episode, or even no ledger — copies
// them into a fresh pack directory preserving relative paths, and
// writes a manifest with a content hash per file.
func Snapshot(options SnapshotOptions) (*SnapshotResult, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	engineVersions := options.EngineVersions
	if len(engineVersions) == 0 {
		engineVersions = version.Compatible()
	}
	pointers := options.Pointers
	if pointers == nil {
		pointers = map[string]any{}
	}

	packID := schema.NewID("pack")
	packDir := filepath.Join(options.OutputDir, packID)
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("resumepack: creating pack directory: %w", err)
	}

	sources, err := collectSources(options.RunDir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(sources))
	for relPath, sourcePath := range sources {
		destPath := filepath.Join(packDir, relPath)
		if err := copyFile(sourcePath, destPath); err != nil {
			return nil, err
		}
		digest, err := hashFile(destPath)
		if err != nil {
			return nil, err
		}
		files[relPath] = digest
	}

	manifest := &schema.PackManifest{
		SchemaVersion:            schema.Version,
		PackID:                   packID,
		CreatedAt:                schema.FormatTime(now()),
		CompatibleEngineVersions: engineVersions,
		Files:                    files,
		Pointers:                 pointers,
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(packDir, ManifestFile)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("resumepack: encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("resumepack: writing manifest: %w", err)
	}

	result := &SnapshotResult{
		PackID:       packID,
		PackDir:      packDir,
		ManifestPath: manifestPath,
	}

	if options.Archive {
		suffix, err := archiveSuffix(options.Compression, options.Recipient != "")
		if err != nil {
			return nil, err
		}
		result.ArchivePath = filepath.Join(options.OutputDir, packID+suffix)
		if err := writeArchive(packDir, result.ArchivePath, options.Compression, options.Recipient); err != nil {
			return nil, err
		}
	}

	logger.Info("resume pack created",
		"pack_id", packID,
		"files", len(files),
		"archived", options.Archive,
	)
	return result, nil
}

// collectSources maps manifest-relative paths to existing source
// files. Missing artifacts are tolerated; a present but unreadable or
// corrupt latest episode is not.
func collectSources(run rundir.RunDir) (map[string]string, error) {
	sources := make(map[string]string, 3)

	if _, err := os.Stat(run.WorkingSetPath()); err == nil {
		sources[rundir.WorkingSetRelPath()] = run.WorkingSetPath()
	}
	if _, err := os.Stat(run.LedgerPath()); err == nil {
		sources[rundir.LedgerRelPath()] = run.LedgerPath()
	}
	_, latestPath, err := episode.Latest(run.EpisodesDir())
	switch {
	case err == nil:
		relPath := filepath.Join("episodes", filepath.Base(latestPath))
		sources[relPath] = latestPath
	case errors.Is(err, episode.ErrNoEpisodes):
	default:
		return nil, err
	}
	return sources, nil
}

// copyFile copies src to dest, creating parent directories.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("resumepack: creating %s: %w", filepath.Dir(dest), err)
	}
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("resumepack: opening %s: %w", src, err)
	}
	defer source.Close()

	destination, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("resumepack: creating %s: %w", dest, err)
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("resumepack: copying %s: %w", src, err)
	}
	if err := destination.Close(); err != nil {
		return fmt.Errorf("resumepack: closing %s: %w", dest, err)
	}
	return nil
}
