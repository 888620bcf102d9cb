// Package schema manages lazy table creation and column evolution for
// document collections.
//
// Each collection is backed by one table whose columns are digest-derived
// identifiers plus the reserved doc_id row identifier. Tables are created on
// first write; later writes with new document shapes add missing columns as
// nullable TEXT. Columns are never altered or dropped, and a table's
// primary-key and index set is fixed when the table is first created.
package schema

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/flatbeddb/flatbed/core/errors"
)

// DocIDColumn is the reserved implicit row identifier present in every
// collection table. It is used as the lookup key when a collection declares
// no primary key of its own.
const DocIDColumn = "doc_id"

// tablePrefix namespaces collection tables away from reserved tables such
// as the name mapping.
const tablePrefix = "doc_"

// pathSeparator replaces "/" in collection paths. Two underscores keep the
// mapping injective: single underscores remain legal inside path segments.
const pathSeparator = "__"

// Querier is the subset of database/sql used by schema operations.
// Both *sql.DB and *sql.Tx satisfy it, so schema evolution can run inside
// the caller's write transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableSpec describes the columns a write needs.
type TableSpec struct {
	Columns    []string // Column identifiers the document uses
	PrimaryKey []string // Subset of Columns forming the primary key
	Indexed    []string // Subset of Columns needing secondary indexes
}

// Manager serializes schema evolution for one storage session.
// SQLite does not make concurrent DDL safe, so all EnsureTable calls go
// through one mutex.
type Manager struct {
	mu sync.Mutex
}

// NewManager creates a schema manager.
func NewManager() *Manager {
	return &Manager{}
}

// TableName derives the backing table name for a collection path.
// The derivation is deterministic and injective: "/" becomes "__", segments
// are limited to [A-Za-z0-9_] and may not contain "__" themselves, so no two
// distinct paths share a table.
func TableName(collection string) (string, error) {
	if collection == "" {
		return "", errors.NewArgument("collection", "empty path")
	}
	segments := strings.Split(collection, "/")
	for _, seg := range segments {
		if seg == "" {
			return "", errors.NewArgument("collection", "empty path segment in "+collection)
		}
		if strings.Contains(seg, pathSeparator) {
			return "", errors.NewArgument("collection",
				"segment "+seg+" would collide with a nested path")
		}
		for _, r := range seg {
			if !isIdentRune(r) {
				return "", errors.NewArgument("collection",
					"segment "+seg+" contains unsupported character")
			}
		}
	}
	return tablePrefix + strings.Join(segments, pathSeparator), nil
}

// CollectionPath reverses TableName for a backing table name.
// Input that does not carry the table prefix is returned unchanged.
func CollectionPath(tableName string) string {
	name, ok := strings.CutPrefix(tableName, tablePrefix)
	if !ok {
		return tableName
	}
	return strings.ReplaceAll(name, pathSeparator, "/")
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// EnsureTable makes the backing table match the spec additively: it creates
// the table (with primary key and indexes) if missing, otherwise adds any
// columns the table does not yet have. Idempotent and safe before every
// write. Existing columns and the primary-key/index set are never changed.
func (m *Manager) EnsureTable(ctx context.Context, q Querier, tableName string, spec TableSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exists, err := m.tableExists(ctx, q, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return m.createTable(ctx, q, tableName, spec)
	}
	return m.addMissingColumns(ctx, q, tableName, spec.Columns)
}

func (m *Manager) tableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		tableName).Scan(&count)
	if err != nil {
		return false, errors.NewStorage("inspect schema", tableName, err)
	}
	return count > 0, nil
}

func (m *Manager) createTable(ctx context.Context, q Querier, tableName string, spec TableSpec) error {
	defs := []string{quoteIdent(DocIDColumn) + " TEXT NOT NULL"}
	for _, col := range spec.Columns {
		defs = append(defs, quoteIdent(col)+" TEXT")
	}

	pk := spec.PrimaryKey
	if len(pk) == 0 {
		pk = []string{DocIDColumn}
	}
	quoted := make([]string, len(pk))
	for i, col := range pk {
		quoted[i] = quoteIdent(col)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")

	ddl := "CREATE TABLE IF NOT EXISTS " + quoteIdent(tableName) +
		" (" + strings.Join(defs, ", ") + ")"
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return errors.NewStorage("create table", tableName, err)
	}

	isPK := make(map[string]bool, len(spec.PrimaryKey))
	for _, col := range spec.PrimaryKey {
		isPK[col] = true
	}
	for _, col := range spec.Indexed {
		if isPK[col] {
			continue // the primary key already has an index
		}
		idx := "idx_" + tableName + "_" + col
		ddl := "CREATE INDEX IF NOT EXISTS " + quoteIdent(idx) +
			" ON " + quoteIdent(tableName) + " (" + quoteIdent(col) + ")"
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return errors.NewStorage("create index", tableName, err)
		}
	}
	return nil
}

func (m *Manager) addMissingColumns(ctx context.Context, q Querier, tableName string, columns []string) error {
	existing, err := m.columns(ctx, q, tableName)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, col := range existing {
		present[col] = true
	}

	for _, col := range columns {
		if present[col] {
			continue
		}
		ddl := "ALTER TABLE " + quoteIdent(tableName) +
			" ADD COLUMN " + quoteIdent(col) + " TEXT"
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return errors.NewStorage("add column", tableName, err)
		}
	}
	return nil
}

// Columns returns the table's current column names via schema introspection.
func (m *Manager) Columns(ctx context.Context, q Querier, tableName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.columns(ctx, q, tableName)
}

func (m *Manager) columns(ctx context.Context, q Querier, tableName string) ([]string, error) {
	// PRAGMA arguments cannot be bound; the table name is always the
	// validated doc_ form, never caller text.
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(tableName)+")")
	if err != nil {
		return nil, errors.NewStorage("inspect columns", tableName, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, errors.NewStorage("scan column info", tableName, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("iterate columns", tableName, err)
	}
	return cols, nil
}

// TableExists reports whether the backing table has been created.
func (m *Manager) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tableExists(ctx, q, tableName)
}

// quoteIdent double-quotes an identifier for SQL text. Identifiers reaching
// this point are digest-derived column names or validated table names, but
// quoting keeps them inert regardless.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
