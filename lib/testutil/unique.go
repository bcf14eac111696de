// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for engine packages.
package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need distinguishable run ids, event ids, or note ids.
//
//	runID := testutil.UniqueID("run")   // "run-1", "run-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
