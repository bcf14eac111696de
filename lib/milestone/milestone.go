// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package milestone gates memory commits behind checkpoint creation.
//
// Recording a milestone mints a single-use token with a fixed time to
// live; a gated commit must present a currently valid token, which is
// invalidated on use. At most one token is live per run, and at most
// one memory commit rides a given milestone.
//
// Tokens are process-local by design. They authorize a short
// operational window, not a session, so persisting them would only
// widen the window a crash leaves open.
package milestone

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/contextfold/contextfold/lib/clock"
)

// DefaultTTL is the token lifetime when Config.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Authorization failures, all terminal for the presented token.
var (
	// ErrNoToken means the run has no live token: none was ever
	// minted, or the last one was already consumed.
	ErrNoToken = errors.New("milestone: no live token for run")

	// ErrTokenExpired means the token's lifetime elapsed before use.
	// The expired token is discarded; a new milestone must be
	// recorded.
	ErrTokenExpired = errors.New("milestone: token expired")

	// ErrTokenMismatch means the presented value is not the run's
	// live token.
	ErrTokenMismatch = errors.New("milestone: token mismatch")
)

// Config holds the registry's collaborators.
type Config struct {
	// TTL is the token lifetime. Zero means DefaultTTL.
	TTL time.Duration

	// Clock supplies the wall clock for expiry checks. If nil, the
	// real clock is used.
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Registry tracks at most one live token per run. Safe for concurrent
// use.
type Registry struct {
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]entry
}

type entry struct {
	token     string
	expiresAt time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(config Config) *Registry {
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		ttl:    ttl,
		clock:  clk,
		logger: logger,
		tokens: make(map[string]entry),
	}
}

// Generate mints a fresh token for runID, replacing any live one, and
// returns it with its expiry.
func (r *Registry) Generate(runID string) (token string, expiresAt time.Time) {
	buffer := make([]byte, 16)
	if _, err := rand.Read(buffer); err != nil {
		panic("milestone: reading random bytes: " + err.Error())
	}
	token = "milestone_" + hex.EncodeToString(buffer)
	expiresAt = r.clock.Now().Add(r.ttl)

	r.mu.Lock()
	r.tokens[runID] = entry{token: token, expiresAt: expiresAt}
	r.mu.Unlock()

	r.logger.Debug("milestone token minted", "run_id", runID, "expires_at", expiresAt)
	return token, expiresAt
}

// Validate checks the presented token without consuming it. An
// expired token is discarded.
func (r *Registry) Validate(runID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.check(runID, token)
}

// Consume validates and invalidates the presented token in one step.
// After a successful Consume the run has no live token.
func (r *Registry) Consume(runID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(runID, token); err != nil {
		return err
	}
	delete(r.tokens, runID)
	r.logger.Debug("milestone token consumed", "run_id", runID)
	return nil
}

// Clear drops the run's live token, if any.
func (r *Registry) Clear(runID string) {
	r.mu.Lock()
	delete(r.tokens, runID)
	r.mu.Unlock()
}

// check is the shared validation path. Caller holds the lock.
func (r *Registry) check(runID, token string) error {
	live, exists := r.tokens[runID]
	if !exists {
		return ErrNoToken
	}
	if !r.clock.Now().Before(live.expiresAt) {
		delete(r.tokens, runID)
		return ErrTokenExpired
	}
	if live.token != token {
		return ErrTokenMismatch
	}
	return nil
}
