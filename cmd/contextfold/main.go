// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Command contextfold is the operator tool for run directories:
// validate them, pack them into resume archives, and restore them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/contextfold/contextfold/lib/config"
	"github.com/contextfold/contextfold/lib/version"
)

// configEnv names the engine config file when no --config flag is
// given.
const configEnv = "CONTEXTFOLD_CONFIG"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, argument := range args {
		if argument == "--version" {
			fmt.Println(version.Engine)
			return 0
		}
	}
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		printUsage()
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	var err error
	switch args[0] {
	case "check":
		err = runCheck(args[1:])
	case "snapshot":
		err = runSnapshot(args[1:])
	case "restore":
		err = runRestore(args[1:])
	case "config":
		err = runConfig(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: contextfold <command> [flags]

Commands:
  check      validate a run directory (working set, ledger, episodes)
  snapshot   pack a run directory into a resume pack
  restore    restore a resume pack into a fresh run directory
  config     print the effective engine configuration

Run 'contextfold <command> --help' for command flags.
`)
}

// loadConfig resolves the engine configuration: an explicit --config
// path wins, then the CONTEXTFOLD_CONFIG environment variable, then
// built-in defaults. A named-but-unreadable file is an error, never a
// silent fallback.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the operator-facing logger. Verbose turns on debug
// output; otherwise only warnings and errors reach the terminal.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
