// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/contextfold/contextfold/lib/episode"
	"github.com/contextfold/contextfold/lib/ledger"
	"github.com/contextfold/contextfold/lib/rundir"
	"github.com/contextfold/contextfold/lib/workingset"
)

func runCheck(args []string) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := flags.String("config", "", "engine config file (default: $CONTEXTFOLD_CONFIG, else built-in defaults)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: contextfold check [flags] <run-dir>

Validates a run directory: the working set document against its
schema and configured budgets, the ledger for dense sequence ids, and
every episode file for decodability. Exits non-zero if anything is
wrong.
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("check: exactly one run directory argument required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	run := rundir.New(flags.Arg(0))
	var problems []string

	store, err := workingset.NewStore(run.WorkingSetPath(), workingset.Config{
		MaxTokens:      cfg.WorkingSet.MaxTokens,
		PinnedMaxItems: cfg.WorkingSet.PinnedMaxItems,
	})
	if err != nil {
		return err
	}
	ws, err := store.Load()
	if err != nil {
		problems = append(problems, fmt.Sprintf("working set: %v", err))
	} else {
		fmt.Printf("working set: ok (run %s, seq %d)\n", ws.RunID, ws.UpdateSeq)
	}

	events, err := ledger.Read(run.LedgerPath())
	if err != nil {
		problems = append(problems, fmt.Sprintf("ledger: %v", err))
	} else {
		for i, event := range events {
			if event.SequenceID != int64(i)+1 {
				problems = append(problems, fmt.Sprintf(
					"ledger: line %d has sequence id %d, want %d (gap or reorder)",
					i+1, event.SequenceID, i+1))
				break
			}
		}
		fmt.Printf("ledger: %d events\n", len(events))
	}

	episodeCount := 0
	entries, err := os.ReadDir(run.EpisodesDir())
	if err != nil && !os.IsNotExist(err) {
		problems = append(problems, fmt.Sprintf("episodes: %v", err))
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), rundir.EpisodeSuffix) {
			continue
		}
		path := filepath.Join(run.EpisodesDir(), entry.Name())
		if _, err := episode.Load(path); err != nil {
			problems = append(problems, fmt.Sprintf("episode %s: %v", entry.Name(), err))
			continue
		}
		episodeCount++
	}
	fmt.Printf("episodes: %d decodable\n", episodeCount)

	if len(problems) > 0 {
		for _, problem := range problems {
			fmt.Fprintf(os.Stderr, "problem: %s\n", problem)
		}
		return fmt.Errorf("check: %d problem(s) found", len(problems))
	}
	fmt.Println("check: ok")
	return nil
}
