// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/contextfold/contextfold/lib/clock"
	"github.com/contextfold/contextfold/lib/codec"
	"github.com/contextfold/contextfold/lib/schema"
	"github.com/contextfold/contextfold/lib/sqlitepool"
)

// memorySchema is the item table. Insertion order is the implicit
// rowid, which search relies on for stable tie-breaking. The list
// columns hold deterministic CBOR.
const memorySchema = `
CREATE TABLE IF NOT EXISTS memory_items (
	memory_id   TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	scope       TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	confidence  REAL NOT NULL,
	status      TEXT NOT NULL,
	supersedes  BLOB NOT NULL,
	source_refs BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS memory_items_status ON memory_items (status);
`

// SQLiteStore persists memory items in a database file, so they
// outlive the runs that created them. Staged batches remain
// process-local: a batch gates one short propose-then-commit window
// and has no business surviving a crash.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	ranker Ranker
	logger *slog.Logger

	mu      sync.Mutex
	batches map[string]stagedBatch
}

// NewSQLiteStore opens (creating if needed) the database at path. The
// caller must Close the store when done.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	config := applyOptions(opts)
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: config.logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, memorySchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("memory: opening store: %w", err)
	}
	return &SQLiteStore{
		pool:    pool,
		clock:   config.clock,
		ranker:  config.ranker,
		logger:  config.logger,
		batches: make(map[string]stagedBatch),
	}, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

// Search implements Store.
func (s *SQLiteStore) Search(ctx context.Context, query string, filters Filters, topK int) ([]schema.MemoryItem, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var candidates []schema.MemoryItem
	err = sqlitex.Execute(conn, `
		SELECT memory_id, type, scope, user_id, project_id, content,
		       confidence, status, supersedes, source_refs,
		       created_at, updated_at
		FROM memory_items
		WHERE status = :status
		  AND (:type = '' OR type = :type)
		  AND (:scope = '' OR scope = :scope)
		  AND (:user_id = '' OR user_id = :user_id)
		  AND (:project_id = '' OR project_id = :project_id)
		ORDER BY rowid`,
		&sqlitex.ExecOptions{
			Named: map[string]any{
				":status":     schema.MemoryStatusActive,
				":type":       filters.Type,
				":scope":      filters.Scope,
				":user_id":    filters.UserID,
				":project_id": filters.ProjectID,
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				item, err := readItem(stmt)
				if err != nil {
					return err
				}
				candidates = append(candidates, *item)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	return rankAndLimit(s.ranker, query, candidates, topK), nil
}

// Propose implements Store.
func (s *SQLiteStore) Propose(ctx context.Context, requests []schema.MemoryChangeRequest, scopeFilters Filters) (string, error) {
	staged, err := stageRequests(requests)
	if err != nil {
		return "", err
	}
	batchID := schema.NewID("batch")

	s.mu.Lock()
	s.batches[batchID] = stagedBatch{requests: staged, scopeFilters: scopeFilters}
	s.mu.Unlock()

	s.logger.Debug("memory batch staged", "batch_id", batchID, "requests", len(staged))
	return batchID, nil
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, batchID string) (committed []string, err error) {
	s.mu.Lock()
	batch, staged := s.batches[batchID]
	if staged {
		// Consume first: a failed materialization must not make the
		// batch retryable.
		delete(s.batches, batchID)
	}
	s.mu.Unlock()
	if !staged {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBatch, batchID)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	now := schema.FormatTime(s.clock.Now())
	committed = []string{}
	for i := range batch.requests {
		request := &batch.requests[i]
		if request.Op == schema.MemoryOpNoop {
			continue
		}
		item, err := materialize(request, now)
		if err != nil {
			return nil, err
		}
		if request.Op == schema.MemoryOpSupersede {
			for _, supersededID := range request.Supersedes {
				if err := tombstoneRow(conn, supersededID, now); err != nil {
					return nil, err
				}
			}
		}
		if request.Op == schema.MemoryOpDeprecate {
			if err := tombstoneRow(conn, request.TargetMemoryID, now); err != nil {
				return nil, err
			}
		}
		if err := insertItem(conn, item); err != nil {
			return nil, err
		}
		committed = append(committed, item.MemoryID)
	}

	s.logger.Info("memory batch committed", "batch_id", batchID, "new_items", len(committed))
	return committed, nil
}

// insertItem writes one materialized item.
func insertItem(conn *sqlite.Conn, item *schema.MemoryItem) error {
	supersedes, err := codec.Marshal(item.Supersedes)
	if err != nil {
		return fmt.Errorf("memory: encoding supersedes for %s: %w", item.MemoryID, err)
	}
	sourceRefs, err := codec.Marshal(item.SourceRefs)
	if err != nil {
		return fmt.Errorf("memory: encoding source_refs for %s: %w", item.MemoryID, err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO memory_items (
			memory_id, type, scope, user_id, project_id, content,
			confidence, status, supersedes, source_refs,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				item.MemoryID, item.Type, item.Scope, item.UserID,
				item.ProjectID, item.Content, item.Confidence,
				item.Status, supersedes, sourceRefs,
				item.CreatedAt, item.UpdatedAt,
			},
		})
	if err != nil {
		return fmt.Errorf("memory: inserting %s: %w", item.MemoryID, err)
	}
	return nil
}

// tombstoneRow marks an item deprecated. Missing ids are skipped, not
// errors.
func tombstoneRow(conn *sqlite.Conn, memoryID, now string) error {
	err := sqlitex.Execute(conn, `
		UPDATE memory_items SET status = ?, updated_at = ?
		WHERE memory_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{schema.MemoryStatusDeprecated, now, memoryID},
		})
	if err != nil {
		return fmt.Errorf("memory: tombstoning %s: %w", memoryID, err)
	}
	return nil
}

// readItem decodes one result row.
func readItem(stmt *sqlite.Stmt) (*schema.MemoryItem, error) {
	item := &schema.MemoryItem{
		SchemaVersion: schema.Version,
		MemoryID:      stmt.ColumnText(0),
		Type:          stmt.ColumnText(1),
		Scope:         stmt.ColumnText(2),
		UserID:        stmt.ColumnText(3),
		ProjectID:     stmt.ColumnText(4),
		Content:       stmt.ColumnText(5),
		Confidence:    stmt.ColumnFloat(6),
		Status:        stmt.ColumnText(7),
		CreatedAt:     stmt.ColumnText(10),
		UpdatedAt:     stmt.ColumnText(11),
	}
	if err := decodeList(stmt, 8, &item.Supersedes); err != nil {
		return nil, fmt.Errorf("memory: decoding supersedes for %s: %w", item.MemoryID, err)
	}
	if err := decodeList(stmt, 9, &item.SourceRefs); err != nil {
		return nil, fmt.Errorf("memory: decoding source_refs for %s: %w", item.MemoryID, err)
	}
	return item, nil
}

// decodeList reads a CBOR list column into target.
func decodeList(stmt *sqlite.Stmt, col int, target *[]string) error {
	data := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, data)
	return codec.Unmarshal(data, target)
}
