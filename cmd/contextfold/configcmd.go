// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func runConfig(args []string) error {
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	configPath := flags.String("config", "", "engine config file (default: $CONTEXTFOLD_CONFIG, else built-in defaults)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: contextfold config [flags]

Prints the effective engine configuration after resolving the
--config flag, the CONTEXTFOLD_CONFIG environment variable, and the
built-in defaults.
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 0 {
		flags.Usage()
		return fmt.Errorf("config: unexpected arguments %v", flags.Args())
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	fmt.Printf("working_set.max_tokens: %d\n", cfg.WorkingSet.MaxTokens)
	fmt.Printf("working_set.pinned_max_items: %d\n", cfg.WorkingSet.PinnedMaxItems)
	fmt.Printf("milestone.token_ttl: %s\n", cfg.TokenTTL())
	fmt.Printf("milestone.step_cap: %d\n", cfg.Milestone.StepCap)
	fmt.Printf("milestone.error_cap: %d\n", cfg.Milestone.ErrorCap)
	return nil
}
