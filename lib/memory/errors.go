// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "errors"

// ErrUnknownBatch is returned by Commit for a batch id that is not
// currently staged. A replayed commit hits this too: the first commit
// removed the batch, and removal is deliberate, not a bookkeeping
// accident, so the caller learns the batch is gone rather than
// silently succeeding twice.
var ErrUnknownBatch = errors.New("memory: unknown batch")
