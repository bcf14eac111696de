// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/contextfold/contextfold/lib/resumepack"
	"github.com/contextfold/contextfold/lib/rundir"
)

func runSnapshot(args []string) error {
	flags := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
	output := flags.String("out", "", "output directory (default: the run's resume/ subdirectory)")
	archive := flags.Bool("archive", false, "also bundle the pack into a single archive file")
	compression := flags.String("compression", "zstd", "archive compression: zstd or lz4")
	recipient := flags.String("recipient", "", "age X25519 recipient key; seals the archive (implies --archive)")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: contextfold snapshot [flags] <run-dir>

Packs the run's durable artifacts (working set, ledger, latest
episode) into a hash-verified resume pack.
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("snapshot: exactly one run directory argument required")
	}

	run := rundir.New(flags.Arg(0))
	outputDir := *output
	if outputDir == "" {
		outputDir = run.ResumeDir()
	}

	result, err := resumepack.Snapshot(resumepack.SnapshotOptions{
		RunDir:      run,
		OutputDir:   outputDir,
		Archive:     *archive || *recipient != "",
		Compression: resumepack.Compression(*compression),
		Recipient:   *recipient,
		Logger:      newLogger(*verbose),
	})
	if err != nil {
		return err
	}

	fmt.Printf("pack: %s\n", result.PackID)
	fmt.Printf("directory: %s\n", result.PackDir)
	if result.ArchivePath != "" {
		fmt.Printf("archive: %s\n", result.ArchivePath)
	}
	return nil
}
