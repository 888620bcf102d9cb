package namemap

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/flatbeddb/flatbed/core/colname"
	"github.com/flatbeddb/flatbed/core/errors"
	"github.com/flatbeddb/flatbed/core/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "namemap.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	id, err := store.Encode(ctx, "details/age_ind")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if id != colname.Encode("details/age_ind") {
		t.Errorf("Encode returned %s, want codec value", id)
	}

	got, err := store.Lookup(id)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != "details/age_ind" {
		t.Errorf("lookup returned %q, want %q", got, "details/age_ind")
	}
}

func TestRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, "col_0000", "a/b"); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", store.Len())
	}
}

// TestCollisionDetected verifies that a second flat key under the same column
// identifier is rejected instead of overwriting the first.
func TestCollisionDetected(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Record(ctx, "col_0000", "a/b"); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	err = store.Record(ctx, "col_0000", "a/c")
	if !errors.Is(err, errors.ErrSchemaConflict) {
		t.Fatalf("expected schema conflict, got %v", err)
	}

	// First-write-wins: the original pair survives.
	got, err := store.Lookup("col_0000")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != "a/b" {
		t.Errorf("mapping overwritten: got %q, want %q", got, "a/b")
	}
}

func TestLookupUnknown(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	_, err = store.Lookup("col_ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, errors.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

// TestReload verifies that mappings survive a process restart: a new Store
// over the same database sees everything recorded by the first.
func TestReload(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := New(ctx, db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	id, err := first.Encode(ctx, "user_pri")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	second, err := New(ctx, db)
	if err != nil {
		t.Fatalf("failed to reload store: %v", err)
	}
	got, err := second.Lookup(id)
	if err != nil {
		t.Fatalf("lookup after reload failed: %v", err)
	}
	if got != "user_pri" {
		t.Errorf("reloaded mapping returned %q, want %q", got, "user_pri")
	}

	// Stability across instances: same flat key, same identifier.
	id2, err := second.Encode(ctx, "user_pri")
	if err != nil {
		t.Fatalf("encode after reload failed: %v", err)
	}
	if id2 != id {
		t.Errorf("identifier changed across reload: %s vs %s", id2, id)
	}
}

// TestIsolation verifies that two stores over different databases do not
// share state.
func TestIsolation(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	b, err := New(ctx, openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	id, err := a.Encode(ctx, "only/in/a")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := b.Lookup(id); !errors.Is(err, errors.ErrUnknownColumn) {
		t.Errorf("mapping leaked across instances: %v", err)
	}
}
