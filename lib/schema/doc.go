// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the engine's persisted and staged document
// types: the working set, working set patches, ledger events,
// episodes, memory items, memory change requests, and resume pack
// manifests.
//
// Every structure that crosses a durability or trust boundary passes
// through its Validate method before being persisted or acted on.
// Validation failures are reported as *ValidationError so callers can
// distinguish structural invalidity from I/O failure.
//
// Wire format is JSON with the field names of the v2.1 document
// family (underscore-prefixed bookkeeping fields, snake_case). The
// same structs carry CBOR tags for episode files.
package schema

// Version is the document schema version stamped on every persisted
// structure. Loaders reject documents from a different lineage.
const Version = "2.1"
