// Package namemap persists the bidirectional mapping between flat document
// keys and their digest-derived column identifiers.
//
// The mapping lives in one reserved table:
//
//	flat_names (hashed_name TEXT PRIMARY KEY, original_name TEXT UNIQUE)
//
// The whole table is loaded into memory at construction; cardinality is
// bounded by the number of distinct flat keys ever seen, not by row count.
// Entries are never overwritten: recording a different flat key for an
// already-recorded column identifier is a digest collision and is surfaced
// as a schema conflict instead of silently replacing the mapping.
package namemap

import (
	"context"
	"database/sql"
	"sync"

	"github.com/flatbeddb/flatbed/core/colname"
	"github.com/flatbeddb/flatbed/core/errors"
)

// TableName is the reserved table holding the name mapping.
const TableName = "flat_names"

// Store is the persistent name mapping for one storage session.
// It is owned by the session rather than kept in process-global state, so
// independent stores (and tests) never observe each other's mappings.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	byColumn map[string]string // column identifier -> flat key
}

// New creates the mapping table if needed and loads all recorded pairs.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+TableName+` (
		hashed_name TEXT PRIMARY KEY,
		original_name TEXT UNIQUE
	)`)
	if err != nil {
		return nil, errors.NewStorage("create mapping table", TableName, err)
	}

	s := &Store{
		db:       db,
		byColumn: make(map[string]string),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the entire mapping table into the in-memory cache.
func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT hashed_name, original_name FROM `+TableName)
	if err != nil {
		return errors.NewStorage("load mapping", TableName, err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var hashed, original string
		if err := rows.Scan(&hashed, &original); err != nil {
			return errors.NewStorage("scan mapping row", TableName, err)
		}
		s.byColumn[hashed] = original
	}
	if err := rows.Err(); err != nil {
		return errors.NewStorage("iterate mapping", TableName, err)
	}
	return nil
}

// Record stores the pair (columnID, flatKey) if absent. It is idempotent for
// an identical pair. Recording a different flat key under an existing column
// identifier returns a SchemaConflictError; the first recorded pair wins and
// is never overwritten.
func (s *Store) Record(ctx context.Context, columnID, flatKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byColumn[columnID]; ok {
		if existing == flatKey {
			return nil
		}
		return errors.NewSchemaConflict(columnID, existing, flatKey)
	}

	// ON CONFLICT DO NOTHING keeps concurrent writers from racing the
	// insert; the cache is authoritative within this session.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+TableName+` (hashed_name, original_name) VALUES (?, ?)
		 ON CONFLICT(hashed_name) DO NOTHING`,
		columnID, flatKey)
	if err != nil {
		return errors.NewStorage("record mapping", TableName, err)
	}

	s.byColumn[columnID] = flatKey
	return nil
}

// Lookup returns the flat key recorded for a column identifier.
// Returns ErrUnknownColumn when the identifier has never been recorded;
// callers reconstructing documents fall back to treating the identifier as
// an opaque leaf key.
func (s *Store) Lookup(columnID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flatKey, ok := s.byColumn[columnID]
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownColumn, "column %s", columnID)
	}
	return flatKey, nil
}

// Encode computes the column identifier for a flat key and records the pair.
func (s *Store) Encode(ctx context.Context, flatKey string) (string, error) {
	columnID := colname.Encode(flatKey)
	if err := s.Record(ctx, columnID, flatKey); err != nil {
		return "", err
	}
	return columnID, nil
}

// Len returns the number of recorded pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byColumn)
}
