// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package version records the engine version and the set of engine
// versions whose on-disk artifacts this build can consume. Resume pack
// manifests embed the compatible list so a restoring engine can refuse
// packs from an incompatible lineage.
package version

// Engine is the version string of this build. It appears in resume
// pack manifests and in the operator CLI's --version output.
const Engine = "contextfold/2.1.0"

// Compatible returns the engine versions whose run directories and
// resume packs this build can load. The current version is always
// included. Entries are ordered newest first.
func Compatible() []string {
	return []string{
		"contextfold/2.1.0",
	}
}
