// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint orchestrates milestones: the moment a run folds
// its recent activity into a durable episode and earns the right to
// commit long-term memory.
//
// Recording a milestone reads the ledger window since the previous
// milestone, snapshots the working set around it, persists an
// episode, appends a MILESTONE ledger event, and mints a single-use
// milestone token. Memory commits are gated on that token; the only
// way around the gate is a double-gated test override (environment
// switch plus per-call flag), never a single flag.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/contextfold/contextfold/lib/clock"
	"github.com/contextfold/contextfold/lib/episode"
	"github.com/contextfold/contextfold/lib/ledger"
	"github.com/contextfold/contextfold/lib/memory"
	"github.com/contextfold/contextfold/lib/milestone"
	"github.com/contextfold/contextfold/lib/rundir"
	"github.com/contextfold/contextfold/lib/schema"
	"github.com/contextfold/contextfold/lib/workingset"
)

// EventTypeMilestone marks the ledger event a milestone appends. It
// is also the boundary for the next milestone's event window.
const EventTypeMilestone = "MILESTONE"

// TestModeEnv arms the test override for ungated memory commits. The
// override additionally requires the per-call flag; neither alone is
// sufficient.
const TestModeEnv = "CONTEXTFOLD_TEST_MODE"

var (
	// ErrNoAuthorization is returned by CommitMemory when no token is
	// presented and the test override is not requested.
	ErrNoAuthorization = errors.New("checkpoint: memory commit requires a milestone token")

	// ErrOverrideNotArmed is returned when the per-call override flag
	// is set but the environment switch is not.
	ErrOverrideNotArmed = errors.New("checkpoint: override flag set but " + TestModeEnv + "=1 is not")
)

// Config wires a Checkpointer to one run's stores.
type Config struct {
	Run        rundir.RunDir
	WorkingSet *workingset.Store
	Ledger     *ledger.Ledger
	Memory     memory.Store
	Milestones *milestone.Registry

	// WriterID identifies this process in ledger events. Defaults to
	// "contextfold".
	WriterID string

	// Clock supplies timestamps. If nil, the real clock is used.
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Checkpointer records milestones and performs gated memory commits
// for one run.
type Checkpointer struct {
	run        rundir.RunDir
	workingSet *workingset.Store
	ledger     *ledger.Ledger
	memory     memory.Store
	milestones *milestone.Registry
	writerID   string
	clock      clock.Clock
	logger     *slog.Logger
}

// New validates the configuration and builds a Checkpointer.
func New(config Config) (*Checkpointer, error) {
	if config.WorkingSet == nil {
		return nil, errors.New("checkpoint: WorkingSet is required")
	}
	if config.Ledger == nil {
		return nil, errors.New("checkpoint: Ledger is required")
	}
	if config.Memory == nil {
		return nil, errors.New("checkpoint: Memory is required")
	}
	if config.Milestones == nil {
		return nil, errors.New("checkpoint: Milestones is required")
	}
	writerID := config.WriterID
	if writerID == "" {
		writerID = "contextfold"
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checkpointer{
		run:        config.Run,
		workingSet: config.WorkingSet,
		ledger:     config.Ledger,
		memory:     config.Memory,
		milestones: config.Milestones,
		writerID:   writerID,
		clock:      clk,
		logger:     logger,
	}, nil
}

// MilestoneInput describes one milestone.
type MilestoneInput struct {
	// Reason is recorded in the MILESTONE ledger event's payload.
	Reason string

	// NextEntryPoint is the episode's guidance for whoever resumes
	// the run.
	NextEntryPoint string

	// BatchID, when set, commits that staged memory batch as part of
	// the milestone; the committed ids land in the episode.
	BatchID string
}

// MilestoneResult reports what the milestone produced.
type MilestoneResult struct {
	EpisodeID  string
	SequenceID int64

	// Token gates one memory commit until ExpiresAt.
	Token     string
	ExpiresAt time.Time

	// MemoryCommits lists ids committed inline via BatchID.
	MemoryCommits []string
}

// Milestone folds everything since the previous milestone into an
// episode, appends the MILESTONE ledger event, and mints the commit
// token.
func (c *Checkpointer) Milestone(ctx context.Context, input MilestoneInput) (*MilestoneResult, error) {
	wsAfter, err := c.workingSet.Load()
	if err != nil {
		return nil, err
	}

	// ws_before is where the previous episode left the run; for the
	// first milestone that is the current document itself.
	wsBefore := wsAfter
	previous, _, err := episode.Latest(c.run.EpisodesDir())
	switch {
	case err == nil:
		wsBefore = &previous.WSAfter
	case errors.Is(err, episode.ErrNoEpisodes):
	default:
		return nil, err
	}

	events, err := ledger.Read(c.ledger.Path())
	if err != nil {
		return nil, err
	}
	window := eventsSinceLastMilestone(events)

	var memoryCommits []string
	if input.BatchID != "" {
		memoryCommits, err = c.memory.Commit(ctx, input.BatchID)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: inline memory commit: %w", err)
		}
	}

	record, err := episode.Create(c.run.EpisodesDir(), episode.CreateInput{
		WSBefore:       *wsBefore,
		WSAfter:        *wsAfter,
		Events:         window,
		MemoryCommits:  memoryCommits,
		NextEntryPoint: input.NextEntryPoint,
	}, c.clock.Now())
	if err != nil {
		return nil, err
	}

	sequenceID, err := c.ledger.Append(&schema.LedgerEvent{
		SchemaVersion: schema.Version,
		EventID:       schema.NewID("evt"),
		EventType:     EventTypeMilestone,
		Timestamp:     schema.FormatTime(c.clock.Now()),
		WriterID:      c.writerID,
		TaskID:        wsAfter.TaskID,
		ThreadID:      wsAfter.ThreadID,
		RunID:         wsAfter.RunID,
		Payload: map[string]any{
			"reason":     input.Reason,
			"episode_id": record.EpisodeID,
		},
	})
	if err != nil {
		return nil, err
	}

	token, expiresAt := c.milestones.Generate(wsAfter.RunID)
	c.logger.Info("milestone recorded",
		"run_id", wsAfter.RunID,
		"episode_id", record.EpisodeID,
		"sequence_id", sequenceID,
		"window_events", len(window),
	)
	return &MilestoneResult{
		EpisodeID:     record.EpisodeID,
		SequenceID:    sequenceID,
		Token:         token,
		ExpiresAt:     expiresAt,
		MemoryCommits: memoryCommits,
	}, nil
}

// CommitMemoryInput authorizes one gated memory commit.
type CommitMemoryInput struct {
	BatchID string

	// Token is the milestone token. Consumed on success, so a given
	// milestone authorizes at most one commit; a mismatched token is
	// rejected without disturbing the live one.
	Token string

	// AllowOutsideMilestone requests the test override. Honored only
	// when TestModeEnv is also "1".
	AllowOutsideMilestone bool
}

// CommitMemory commits a staged batch under the milestone gate. The
// token is invalidated before the commit runs, so even a failed
// commit spends the milestone.
func (c *Checkpointer) CommitMemory(ctx context.Context, input CommitMemoryInput) ([]string, error) {
	runID := ""
	if ws, err := c.workingSet.Load(); err == nil {
		runID = ws.RunID
	}

	switch {
	case input.Token != "":
		if err := c.milestones.Consume(runID, input.Token); err != nil {
			return nil, err
		}
	case input.AllowOutsideMilestone:
		if os.Getenv(TestModeEnv) != "1" {
			return nil, ErrOverrideNotArmed
		}
		c.logger.Warn("memory commit via test override", "run_id", runID, "batch_id", input.BatchID)
	default:
		return nil, ErrNoAuthorization
	}

	return c.memory.Commit(ctx, input.BatchID)
}

// eventsSinceLastMilestone returns the events after the most recent
// MILESTONE event, or all events if none exists.
func eventsSinceLastMilestone(events []schema.LedgerEvent) []schema.LedgerEvent {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType == EventTypeMilestone {
			return events[i+1:]
		}
	}
	return events
}
