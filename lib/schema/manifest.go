// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "path/filepath"

// PackManifest enumerates the contents of a resume pack: every
// bundled file with its content hash, plus opaque caller-supplied
// pointers (for example the last ledger sequence observed, so a
// resumed run can tail the ledger without re-scanning from zero).
// Immutable once written.
type PackManifest struct {
	SchemaVersion string `json:"_schema_version"`

	PackID    string `json:"pack_id"`
	CreatedAt string `json:"created_at"`

	CompatibleEngineVersions []string `json:"compatible_engine_versions"`

	// Files maps relative path to hex-encoded BLAKE3-256 content
	// hash. Loading rejects any entry whose file is missing or whose
	// hash differs.
	Files map[string]string `json:"files"`

	// Pointers is an opaque bookmark map.
	Pointers map[string]any `json:"pointers"`
}

// hashHexLength is the hex length of a 256-bit content hash.
const hashHexLength = 64

// Validate checks the manifest's structural invariants.
func (m *PackManifest) Validate() error {
	const doc = "resume_pack_manifest"
	if m.SchemaVersion != Version {
		return invalid(doc, "_schema_version %q, want %q", m.SchemaVersion, Version)
	}
	if m.PackID == "" {
		return invalid(doc, "pack_id is required")
	}
	if m.CreatedAt == "" {
		return invalid(doc, "created_at is required")
	}
	if len(m.CompatibleEngineVersions) == 0 {
		return invalid(doc, "compatible_engine_versions must name at least one version")
	}
	for path, digest := range m.Files {
		if path == "" {
			return invalid(doc, "files: empty relative path")
		}
		// Loading joins these onto the target run directory, so a
		// path that escapes its root is never acceptable.
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			return invalid(doc, "files[%q]: path escapes the pack root", path)
		}
		if len(digest) != hashHexLength {
			return invalid(doc, "files[%q]: hash length %d, want %d hex characters", path, len(digest), hashHexLength)
		}
		for _, c := range digest {
			if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
				return invalid(doc, "files[%q]: hash is not lowercase hex", path)
			}
		}
	}
	return nil
}
