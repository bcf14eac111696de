// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/contextfold/contextfold/lib/resumepack"
)

func runRestore(args []string) error {
	flags := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	runID := flags.String("run-id", "", "run id for the restored run (default: mint a new one)")
	identity := flags.String("identity", "", "age X25519 identity for sealed archives")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: contextfold restore [flags] <pack> <target-dir>

Verifies every file hash in the pack (a directory or a .tar.zst /
.tar.lz4 / .age archive) and materializes it as a run directory.
Nothing is written if verification fails.
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return fmt.Errorf("restore: pack and target directory arguments required")
	}

	result, err := resumepack.Load(resumepack.LoadOptions{
		PackPath:     flags.Arg(0),
		TargetRunDir: flags.Arg(1),
		NewRunID:     *runID,
		Identity:     *identity,
		Logger:       newLogger(*verbose),
	})
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", result.RunID)
	fmt.Printf("directory: %s\n", result.RunDir.Root)
	fmt.Printf("objective: %s\n", result.WorkingSet.Objective)
	return nil
}
