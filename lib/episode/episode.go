// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package episode builds and persists checkpoint records: one
// immutable CBOR file per episode, bridging two working-set snapshots
// and a window of ledger events.
package episode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/contextfold/contextfold/lib/codec"
	"github.com/contextfold/contextfold/lib/rundir"
	"github.com/contextfold/contextfold/lib/schema"
)

// summaryMaxChars bounds the derived summary text. Truncation happens
// at a line boundary so a clipped summary stays coherent.
const summaryMaxChars = 1200

// summaryTailEvents is how many trailing events the summary lists
// individually.
const summaryTailEvents = 5

// ErrNoEpisodes is returned by Latest when the episodes directory
// holds no episode files.
var ErrNoEpisodes = errors.New("episode: no episodes recorded")

// CreateInput carries everything an episode derives from.
type CreateInput struct {
	WSBefore schema.WorkingSet
	WSAfter  schema.WorkingSet

	// Events is the ledger window covered by this episode, in
	// sequence order.
	Events []schema.LedgerEvent

	// MemoryCommits lists memory ids committed at this milestone.
	MemoryCommits []string

	NextEntryPoint string
}

// Create builds a new episode with a deterministic summary, validates
// it, and persists it as a new file in episodesDir. The file is
// written via temp-file-and-rename, so a failed creation leaves no
// partial episode behind.
func Create(episodesDir string, input CreateInput, now time.Time) (*schema.Episode, error) {
	if err := os.MkdirAll(episodesDir, 0o755); err != nil {
		return nil, fmt.Errorf("episode: creating episodes directory: %w", err)
	}

	record := &schema.Episode{
		SchemaVersion:  schema.Version,
		EpisodeID:      schema.NewID("ep"),
		CreatedAt:      schema.FormatTime(now),
		Summary:        summarize(input.Events),
		WSBefore:       input.WSBefore,
		WSAfter:        input.WSAfter,
		MemoryCommits:  append([]string(nil), input.MemoryCommits...),
		NextEntryPoint: input.NextEntryPoint,
	}
	if record.MemoryCommits == nil {
		record.MemoryCommits = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	data, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("episode: encoding %s: %w", record.EpisodeID, err)
	}

	finalPath := filepath.Join(episodesDir, record.EpisodeID+rundir.EpisodeSuffix)
	if _, err := os.Stat(finalPath); err == nil {
		return nil, fmt.Errorf("episode: id collision at %s", finalPath)
	}

	tmpFile, err := os.CreateTemp(episodesDir, "episode-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("episode: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("episode: writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("episode: syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("episode: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("episode: renaming into place: %w", err)
	}
	success = true

	return record, nil
}

// Path returns the file path of an episode id under episodesDir.
func Path(episodesDir, episodeID string) string {
	return filepath.Join(episodesDir, episodeID+rundir.EpisodeSuffix)
}

// Load reads and validates one episode file.
func Load(path string) (*schema.Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("episode: reading %s: %w", path, err)
	}
	var record schema.Episode
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, &schema.ValidationError{Doc: "episode", Reason: fmt.Sprintf("%s is not a valid episode: %v", path, err)}
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return &record, nil
}

// Latest returns the most recently created episode in episodesDir.
// Recency is the recorded created_at timestamp with the episode id as
// tiebreak — never filesystem mtime, which archives and copies do not
// preserve. Returns ErrNoEpisodes when the directory is empty or
// absent.
func Latest(episodesDir string) (*schema.Episode, string, error) {
	entries, err := os.ReadDir(episodesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNoEpisodes
		}
		return nil, "", fmt.Errorf("episode: listing %s: %w", episodesDir, err)
	}

	var latest *schema.Episode
	var latestPath string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), rundir.EpisodeSuffix) {
			continue
		}
		path := filepath.Join(episodesDir, entry.Name())
		record, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		if latest == nil || newer(record, latest) {
			latest = record
			latestPath = path
		}
	}
	if latest == nil {
		return nil, "", ErrNoEpisodes
	}
	return latest, latestPath, nil
}

// newer reports whether a was created after b, breaking timestamp
// ties by episode id.
func newer(a, b *schema.Episode) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.EpisodeID > b.EpisodeID
}

// summarize derives the deterministic episode summary: sorted
// per-type event counts followed by a short tail listing, clipped to
// summaryMaxChars at a line boundary.
func summarize(events []schema.LedgerEvent) string {
	counts := make(map[string]int)
	for _, event := range events {
		counts[event.EventType]++
	}
	types := make([]string, 0, len(counts))
	for eventType := range counts {
		types = append(types, eventType)
	}
	sort.Strings(types)

	var builder strings.Builder
	builder.WriteString("Event counts:")
	for _, eventType := range types {
		fmt.Fprintf(&builder, "\n- %s: %d", eventType, counts[eventType])
	}

	tail := events
	if len(tail) > summaryTailEvents {
		tail = tail[len(tail)-summaryTailEvents:]
	}
	builder.WriteString("\n\nLast events (tail):")
	for _, event := range tail {
		fmt.Fprintf(&builder, "\n- %s @ %s", event.EventType, event.Timestamp)
	}

	return clipAtLine(builder.String(), summaryMaxChars)
}

// clipAtLine truncates s to at most maxChars, cutting at the last
// complete line rather than mid-line.
func clipAtLine(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	clipped := s[:maxChars]
	if idx := strings.LastIndexByte(clipped, '\n'); idx > 0 {
		return clipped[:idx]
	}
	return clipped
}
