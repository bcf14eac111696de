// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the append-only audit trail for one run: a JSONL
// file with strictly sequential, gapless event ids assigned under an
// exclusive file lock.
//
// The ledger is write-optimized. Reads are the caller's concern via
// sequential scan; the package-level Read helper exists for callers
// and tools, but the Ledger type itself offers only Append.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/contextfold/contextfold/lib/schema"
)

// Ledger appends events to a single run's log file.
type Ledger struct {
	path   string
	logger *slog.Logger
}

// Config holds the ledger's ambient collaborators.
type Config struct {
	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// New creates a ledger writing to path. The parent directory is
// created if needed; the file itself is created on first append.
func New(path string, config Config) (*Ledger, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: creating ledger directory: %w", err)
	}
	return &Ledger{path: path, logger: logger}, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Append validates the event, assigns a sequence id if the event
// carries none, and durably appends one JSON line. The whole
// count-then-append-then-sync span runs under an exclusive flock so
// concurrent appenders receive dense, unique sequence ids starting
// at 1. Returns the assigned sequence id.
//
// Counting existing lines is O(n) per append. Ledgers are bounded by
// run lifetime, not global scale; a reimplementation serving
// high-throughput logs should keep a persisted counter instead.
func (l *Ledger) Append(event *schema.LedgerEvent) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}

	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("ledger: opening %s: %w", l.path, err)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("ledger: locking %s: %w", l.path, err)
	}
	defer func() {
		if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
			l.logger.Warn("ledger unlock failed", "path", l.path, "error", err)
		}
	}()

	sequenceID := event.SequenceID
	if sequenceID == 0 {
		count, err := countLines(file)
		if err != nil {
			return 0, fmt.Errorf("ledger: counting events in %s: %w", l.path, err)
		}
		sequenceID = count + 1
	}

	// Serialize with the assigned id without mutating the caller's
	// event until the write has succeeded.
	stamped := *event
	stamped.SequenceID = sequenceID
	line, err := json.Marshal(&stamped)
	if err != nil {
		return 0, fmt.Errorf("ledger: encoding event %s: %w", event.EventID, err)
	}
	line = append(line, '\n')

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("ledger: seeking to end of %s: %w", l.path, err)
	}
	if _, err := file.Write(line); err != nil {
		return 0, fmt.Errorf("ledger: appending to %s: %w", l.path, err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("ledger: syncing %s: %w", l.path, err)
	}

	event.SequenceID = sequenceID
	return sequenceID, nil
}

// countLines counts newline-terminated lines from the start of file.
// The file offset is left at an unspecified position.
func countLines(file *os.File) (int64, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	reader := bufio.NewReader(file)
	buffer := make([]byte, 64*1024)
	var count int64
	for {
		read, err := reader.Read(buffer)
		for _, b := range buffer[:read] {
			if b == '\n' {
				count++
			}
		}
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
	}
}

// Read scans a ledger file sequentially and returns every event in
// order. A missing file yields an empty slice: a brand-new run has an
// empty ledger. Intended for callers (checkpointing, tooling) — the
// ledger itself never reads its own tail on the append path beyond
// line counting.
func Read(path string) ([]schema.LedgerEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer file.Close()

	var events []schema.LedgerEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		var event schema.LedgerEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, &schema.ValidationError{
				Doc:    "ledger_event",
				Reason: fmt.Sprintf("line %d is not valid JSON: %v", lineNumber, err),
			}
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scanning %s: %w", path, err)
	}
	return events, nil
}
