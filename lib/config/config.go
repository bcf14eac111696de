// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the engine.
//
// Configuration is loaded from a single yaml file specified by the
// CONTEXTFOLD_CONFIG environment variable or a --config flag. There
// are no fallbacks or automatic discovery: missing file means
// defaults, explicitly-named-but-unreadable file means an error.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// WorkingSet configures the state store.
	WorkingSet WorkingSetConfig `yaml:"working_set"`

	// Milestone configures checkpoint cadence and token lifetime.
	Milestone MilestoneConfig `yaml:"milestone"`
}

// WorkingSetConfig bounds the working set document.
type WorkingSetConfig struct {
	// MaxTokens is the total token budget for the rendered working
	// set. Eviction keeps the document within this budget.
	MaxTokens int `yaml:"max_tokens"`

	// PinnedMaxItems caps pinned_context by item count.
	PinnedMaxItems int `yaml:"pinned_max_items"`
}

// MilestoneConfig controls milestone behavior.
type MilestoneConfig struct {
	// TokenTTLSeconds is the lifetime of a milestone authorization
	// token, in seconds.
	TokenTTLSeconds int `yaml:"token_ttl_seconds"`

	// StepCap and ErrorCap are advisory milestone triggers recorded
	// for callers; the engine itself does not count steps.
	StepCap  int `yaml:"step_cap"`
	ErrorCap int `yaml:"error_cap"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		WorkingSet: WorkingSetConfig{
			MaxTokens:      2000,
			PinnedMaxItems: 10,
		},
		Milestone: MilestoneConfig{
			TokenTTLSeconds: 300,
			StepCap:         10,
			ErrorCap:        3,
		},
	}
}

// Load reads configuration from path, layering the file's values over
// Default(). Unknown keys are an error: a typo in a config file must
// not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c Config) Validate() error {
	if c.WorkingSet.MaxTokens <= 0 {
		return fmt.Errorf("working_set.max_tokens must be positive, got %d", c.WorkingSet.MaxTokens)
	}
	if c.WorkingSet.PinnedMaxItems <= 0 {
		return fmt.Errorf("working_set.pinned_max_items must be positive, got %d", c.WorkingSet.PinnedMaxItems)
	}
	if c.Milestone.TokenTTLSeconds <= 0 {
		return fmt.Errorf("milestone.token_ttl_seconds must be positive, got %d", c.Milestone.TokenTTLSeconds)
	}
	return nil
}

// TokenTTL returns the milestone token lifetime as a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Milestone.TokenTTLSeconds) * time.Second
}
