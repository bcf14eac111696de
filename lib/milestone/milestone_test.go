// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package milestone

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/contextfold/contextfold/lib/clock"
)

var testStart = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestRegistry(ttl time.Duration) (*Registry, *clock.FakeClock) {
	fake := clock.Fake(testStart)
	registry := NewRegistry(Config{TTL: ttl, Clock: fake})
	return registry, fake
}

func TestGenerateAndConsume(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)

	token, expiresAt := registry.Generate("run_1")
	if !strings.HasPrefix(token, "milestone_") || len(token) != len("milestone_")+32 {
		t.Fatalf("token shape = %q", token)
	}
	if want := testStart.Add(time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", expiresAt, want)
	}

	if err := registry.Validate("run_1", token); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := registry.Consume("run_1", token); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	// Single use: the token is gone.
	if err := registry.Consume("run_1", token); !errors.Is(err, ErrNoToken) {
		t.Fatalf("second consume error = %v, want ErrNoToken", err)
	}
}

func TestValidateDoesNotConsume(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	token, _ := registry.Generate("run_1")

	for range 3 {
		if err := registry.Validate("run_1", token); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
	if err := registry.Consume("run_1", token); err != nil {
		t.Fatalf("Consume after validations: %v", err)
	}
}

func TestNoToken(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	if err := registry.Validate("run_never", "milestone_whatever"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
}

func TestTokenMismatch(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	token, _ := registry.Generate("run_1")

	err := registry.Consume("run_1", "milestone_00000000000000000000000000000000")
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("error = %v, want ErrTokenMismatch", err)
	}
	// A mismatch must not disturb the live token.
	if err := registry.Consume("run_1", token); err != nil {
		t.Fatalf("Consume after mismatch: %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	registry, fake := newTestRegistry(time.Minute)
	token, _ := registry.Generate("run_1")

	fake.Advance(59 * time.Second)
	if err := registry.Validate("run_1", token); err != nil {
		t.Fatalf("Validate before expiry: %v", err)
	}

	fake.Advance(time.Second)
	if err := registry.Consume("run_1", token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}
	// The expired token was discarded, so a retry sees no token.
	if err := registry.Consume("run_1", token); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error after expiry = %v, want ErrNoToken", err)
	}
}

func TestGenerateReplacesLiveToken(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)

	oldToken, _ := registry.Generate("run_1")
	newToken, _ := registry.Generate("run_1")
	if oldToken == newToken {
		t.Fatal("regenerated token is identical")
	}

	if err := registry.Validate("run_1", oldToken); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("old token error = %v, want ErrTokenMismatch", err)
	}
	if err := registry.Consume("run_1", newToken); err != nil {
		t.Fatalf("Consume new token: %v", err)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)

	token1, _ := registry.Generate("run_1")
	token2, _ := registry.Generate("run_2")

	if err := registry.Consume("run_1", token1); err != nil {
		t.Fatalf("Consume run_1: %v", err)
	}
	if err := registry.Consume("run_2", token2); err != nil {
		t.Fatalf("Consume run_2: %v", err)
	}
}

func TestClear(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	token, _ := registry.Generate("run_1")

	registry.Clear("run_1")
	if err := registry.Validate("run_1", token); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error after clear = %v, want ErrNoToken", err)
	}
}

func TestDefaultTTL(t *testing.T) {
	fake := clock.Fake(testStart)
	registry := NewRegistry(Config{Clock: fake})

	_, expiresAt := registry.Generate("run_1")
	if want := testStart.Add(DefaultTTL); !expiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", expiresAt, want)
	}
}
