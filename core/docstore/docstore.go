// Package docstore exposes create/read/update/delete and paginated list
// operations over named document collections.
//
// A collection is a "/"-delimited path backed by one table. Writes flatten
// the document, evolve the backing schema, and upsert in one transaction;
// reads drop NULL columns and reconstruct the nested shape through the name
// mapping. Every value reaching SQL is parameter-bound; the only identifiers
// interpolated into statement text are digest-derived column names and
// validated table names.
package docstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flatbeddb/flatbed/core/colname"
	"github.com/flatbeddb/flatbed/core/cond"
	"github.com/flatbeddb/flatbed/core/errors"
	"github.com/flatbeddb/flatbed/core/flatten"
	"github.com/flatbeddb/flatbed/core/namemap"
	"github.com/flatbeddb/flatbed/core/schema"
	"github.com/flatbeddb/flatbed/internal/cache"
	"github.com/flatbeddb/flatbed/internal/logging"
)

// Document is a nested mapping of string keys to scalars or sub-documents.
type Document = map[string]any

// Store orchestrates flattening, schema evolution, and row storage for one
// database session.
type Store struct {
	db      *sql.DB
	names   *namemap.Store
	codec   *flatten.Codec
	schema  *schema.Manager
	catalog *cache.Listing

	// writeMu serializes the write path (flatten, schema evolution,
	// mutation). Reads run on the pooled handle without it.
	writeMu sync.Mutex
}

// New creates a document store over an open database, creating the reserved
// name mapping table and loading recorded mappings.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	names, err := namemap.New(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:      db,
		names:   names,
		codec:   flatten.NewCodec(names),
		schema:  schema.NewManager(),
		catalog: cache.NewListing(30 * time.Second),
	}, nil
}

// Put flattens the document, evolves the collection's schema, and upserts
// one row, all in a single transaction. The upsert is keyed on the
// collection's declared primary-key columns; without any it degrades to a
// plain insert under the implicit doc_id key. Returns the assigned doc_id.
func (s *Store) Put(ctx context.Context, collection string, doc Document) (string, error) {
	table, err := schema.TableName(collection)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	flat, err := s.codec.Flatten(ctx, doc)
	if err != nil {
		return "", err
	}
	if len(flat) == 0 {
		return "", errors.NewArgument("document", "no scalar values to store")
	}

	spec, err := s.tableSpec(flat)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.NewStorage("begin transaction", table, err)
	}
	defer tx.Rollback()

	if err := s.schema.EnsureTable(ctx, tx, table, spec); err != nil {
		return "", err
	}

	docID := uuid.NewString()
	columns := []string{schema.DocIDColumn}
	args := []any{docID}
	for _, col := range spec.Columns {
		columns = append(columns, col)
		args = append(args, flat[col])
	}

	query := "INSERT OR REPLACE INTO " + quoteIdent(table) +
		" (" + joinQuoted(columns) + ") VALUES (" + placeholders(len(columns)) + ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		logging.Error("document insert failed", "collection", collection, "error", err)
		return "", errors.NewStorage("insert", table, err)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewStorage("commit", table, err)
	}
	s.catalog.Invalidate()

	logging.StoreEvent(ctx, "document_stored", collection,
		"doc_id", docID, "columns", len(columns))
	return docID, nil
}

// Get returns the document stored under the implicit doc_id row identifier.
func (s *Store) Get(ctx context.Context, collection, docID string) (Document, error) {
	table, err := schema.TableName(collection)
	if err != nil {
		return nil, err
	}
	exists, err := s.schema.TableExists(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewNotFound(collection, docID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT * FROM "+quoteIdent(table)+" WHERE "+quoteIdent(schema.DocIDColumn)+" = ?",
		docID)
	if err != nil {
		return nil, errors.NewStorage("select", table, err)
	}
	flatRows, err := readRows(table, rows)
	if err != nil {
		return nil, err
	}
	if len(flatRows) == 0 {
		return nil, errors.NewNotFound(collection, docID)
	}
	return s.codec.Unflatten(flatRows[0])
}

// List returns every document in the collection. A collection that has never
// been written is an empty list, not an error.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	table, err := schema.TableName(collection)
	if err != nil {
		return nil, err
	}
	exists, err := s.schema.TableExists(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Document{}, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, errors.NewStorage("select", table, err)
	}
	flatRows, err := readRows(table, rows)
	if err != nil {
		return nil, err
	}
	return s.codec.UnflattenAll(flatRows)
}

// Update applies a partial document to every row matching the condition.
// Only columns referenced by the partial document are added to the schema;
// condition keys never create columns, and a condition over a column the
// table does not have matches nothing. Returns the number of rows updated.
func (s *Store) Update(ctx context.Context, collection string, partial Document, where string) (int64, error) {
	condition, err := cond.Parse(where)
	if err != nil {
		return 0, err
	}
	table, err := schema.TableName(collection)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	flat, err := s.codec.Flatten(ctx, partial)
	if err != nil {
		return 0, err
	}
	if len(flat) == 0 {
		return 0, errors.NewArgument("document", "no scalar values to update")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewStorage("begin transaction", table, err)
	}
	defer tx.Rollback()

	exists, err := s.schema.TableExists(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.NewNotFound(collection, "")
	}

	spec, err := s.tableSpec(flat)
	if err != nil {
		return 0, err
	}
	if err := s.schema.EnsureTable(ctx, tx, table, spec); err != nil {
		return 0, err
	}

	ok, err := s.conditionApplies(ctx, tx, table, condition)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := tx.Commit(); err != nil {
			return 0, errors.NewStorage("commit", table, err)
		}
		logging.Debug("condition references unrecorded field", "collection", collection)
		return 0, nil
	}

	var set strings.Builder
	args := make([]any, 0, len(spec.Columns)+len(condition.Clauses))
	for i, col := range spec.Columns {
		if i > 0 {
			set.WriteString(", ")
		}
		set.WriteString(quoteIdent(col))
		set.WriteString(" = ?")
		args = append(args, flat[col])
	}
	whereSQL, whereArgs := condition.WhereSQL(colname.Encode)
	args = append(args, whereArgs...)

	res, err := tx.ExecContext(ctx,
		"UPDATE "+quoteIdent(table)+" SET "+set.String()+" WHERE "+whereSQL, args...)
	if err != nil {
		logging.Error("document update failed", "collection", collection, "error", err)
		return 0, errors.NewStorage("update", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage("update", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewStorage("commit", table, err)
	}
	logging.StoreEvent(ctx, "documents_updated", collection, "rows", affected)
	return affected, nil
}

// Delete removes every row matching the condition.
// Returns the number of rows deleted.
func (s *Store) Delete(ctx context.Context, collection, where string) (int64, error) {
	condition, err := cond.Parse(where)
	if err != nil {
		return 0, err
	}
	table, err := schema.TableName(collection)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.schema.TableExists(ctx, s.db, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.NewNotFound(collection, "")
	}

	ok, err := s.conditionApplies(ctx, s.db, table, condition)
	if err != nil {
		return 0, err
	}
	if !ok {
		logging.Debug("condition references unrecorded field", "collection", collection)
		return 0, nil
	}

	whereSQL, args := condition.WhereSQL(colname.Encode)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+quoteIdent(table)+" WHERE "+whereSQL, args...)
	if err != nil {
		logging.Error("document delete failed", "collection", collection, "error", err)
		return 0, errors.NewStorage("delete", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage("delete", table, err)
	}
	logging.StoreEvent(ctx, "documents_deleted", collection, "rows", affected)
	return affected, nil
}

// Query returns one page of the collection ordered by a document field.
// Rows missing the field sort as the default value (zero). Page numbering is
// 1-based; page and pageSize below 1 are rejected.
func (s *Store) Query(ctx context.Context, collection, orderBy string, descending bool, page, pageSize int) ([]Document, error) {
	if page < 1 {
		return nil, errors.NewArgument("page", "must be >= 1")
	}
	if pageSize < 1 {
		return nil, errors.NewArgument("page_size", "must be >= 1")
	}
	table, err := schema.TableName(collection)
	if err != nil {
		return nil, err
	}
	exists, err := s.schema.TableExists(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Document{}, nil
	}

	orderCol := colname.Encode(orderBy)
	hasCol, err := s.hasColumn(ctx, s.db, table, orderCol)
	if err != nil {
		return nil, err
	}
	if !hasCol {
		return nil, errors.NewArgument("order_by", "collection has no field "+orderBy)
	}

	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	offset := (page - 1) * pageSize

	// COALESCE keeps rows with a NULL sort field in the result, ordered
	// as the default value. doc_id breaks ties so pages never overlap.
	query := "SELECT * FROM " + quoteIdent(table) +
		" ORDER BY COALESCE(" + quoteIdent(orderCol) + ", '0') " + direction +
		", " + quoteIdent(schema.DocIDColumn) + " ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, errors.NewStorage("select", table, err)
	}
	flatRows, err := readRows(table, rows)
	if err != nil {
		return nil, err
	}
	return s.codec.UnflattenAll(flatRows)
}

// Collections lists the collection paths with a backing table. The listing
// is cached briefly; writes that may create a table invalidate it.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	if cached, ok := s.catalog.Get(); ok {
		return cached, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'doc\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, errors.NewStorage("list tables", "", err)
	}
	defer rows.Close()

	var collections []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewStorage("scan table name", "", err)
		}
		collections = append(collections, schema.CollectionPath(name))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("list tables", "", err)
	}
	s.catalog.Set(collections)
	return collections, nil
}

// tableSpec derives column, primary-key, and index sets from a flattened
// row by decoding each identifier back to its flat key. Columns are sorted
// so generated SQL is deterministic.
func (s *Store) tableSpec(flat map[string]string) (schema.TableSpec, error) {
	spec := schema.TableSpec{}
	for col := range flat {
		spec.Columns = append(spec.Columns, col)
	}
	sort.Strings(spec.Columns)

	for _, col := range spec.Columns {
		flatKey, err := s.names.Lookup(col)
		if err != nil {
			return schema.TableSpec{}, err
		}
		if colname.IsPrimaryKey(flatKey) {
			spec.PrimaryKey = append(spec.PrimaryKey, col)
		}
		if colname.IsIndexed(flatKey) {
			spec.Indexed = append(spec.Indexed, col)
		}
	}
	return spec, nil
}

// conditionApplies reports whether every column the condition references
// exists in the table. A condition over an absent column matches no rows.
func (s *Store) conditionApplies(ctx context.Context, q schema.Querier, table string, c *cond.Condition) (bool, error) {
	for _, key := range c.Keys() {
		ok, err := s.hasColumn(ctx, q, table, colname.Encode(key))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) hasColumn(ctx context.Context, q schema.Querier, table, column string) (bool, error) {
	cols, err := s.schema.Columns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == column {
			return true, nil
		}
	}
	return false, nil
}

// readRows scans every row into a column -> value map, dropping NULLs.
// All columns are text-typed; the closer owns rows.
func readRows(table string, rows *sql.Rows) ([]map[string]string, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.NewStorage("read columns", table, err)
	}

	var out []map[string]string
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			values[i] = new(sql.NullString)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, errors.NewStorage("scan row", table, err)
		}

		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if ns := values[i].(*sql.NullString); ns.Valid {
				row[col] = ns.String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("iterate rows", table, err)
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
