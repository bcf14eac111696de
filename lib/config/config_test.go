// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contextfold.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.WorkingSet.MaxTokens != 2000 {
		t.Errorf("max_tokens = %d, want 2000", cfg.WorkingSet.MaxTokens)
	}
	if cfg.WorkingSet.PinnedMaxItems != 10 {
		t.Errorf("pinned_max_items = %d, want 10", cfg.WorkingSet.PinnedMaxItems)
	}
	if cfg.TokenTTL() != 5*time.Minute {
		t.Errorf("token ttl = %v, want 5m", cfg.TokenTTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
working_set:
  max_tokens: 500
milestone:
  token_ttl_seconds: 60
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkingSet.MaxTokens != 500 {
		t.Errorf("max_tokens = %d, want 500", cfg.WorkingSet.MaxTokens)
	}
	// Untouched keys keep their defaults.
	if cfg.WorkingSet.PinnedMaxItems != 10 {
		t.Errorf("pinned_max_items = %d, want default 10", cfg.WorkingSet.PinnedMaxItems)
	}
	if cfg.TokenTTL() != time.Minute {
		t.Errorf("token ttl = %v, want 1m", cfg.TokenTTL())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
working_set:
  max_tokenz: 500
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
working_set:
  max_tokens: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative budget")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
