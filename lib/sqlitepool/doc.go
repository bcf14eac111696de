// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas
// every Contextfold store uses.
//
// The long-term memory store is the primary consumer: memory items
// outlive individual runs, so they live in a database file rather than
// in the run directory. The pool wraps zombiezen.com/go/sqlite with
// defaults tuned for that shape of workload: WAL journal mode so
// searches never block a commit, NORMAL synchronous (commits survive a
// process crash; the ledger, not the database, is the recovery source
// after an OS crash), and a busy timeout instead of immediate
// SQLITE_BUSY errors under write contention.
//
// Callers [Pool.Take] a connection, work with plain SQL through
// sqlitex, and [Pool.Put] it back. Connections are not safe for
// concurrent use; the pool is. There is no query builder and no ORM —
// stores write their own SQL and own their own schemas via the
// OnConnect hook.
package sqlitepool
