package sqlite

import (
	"path/filepath"
	"testing"
)

// TestOpenAndExec verifies that the selected driver can open a database
// and execute basic statements.
func TestOpenAndExec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (k TEXT PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t (k, v) VALUES (?, ?)`, "a", "1"); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	var v string
	if err := db.QueryRow(`SELECT v FROM t WHERE k = ?`, "a").Scan(&v); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if v != "1" {
		t.Errorf("got %q, want %q", v, "1")
	}
}

// TestOpenMemory verifies that the in-memory database is shared across
// pooled connections.
func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (k TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	// A fresh statement must still see the table created above.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count); err != nil {
		t.Fatalf("table not visible on second statement: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d rows, want 0", count)
	}
}

// TestOpenMemoryIsolated verifies that two in-memory handles in the same
// process do not share a database.
func TestOpenMemoryIsolated(t *testing.T) {
	db1, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open first in-memory database: %v", err)
	}
	defer db1.Close()
	db2, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open second in-memory database: %v", err)
	}
	defer db2.Close()

	if _, err := db1.Exec(`CREATE TABLE only_one (k TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	var count int
	err = db2.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'only_one'`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Error("table created on one handle is visible on the other")
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: %q vs %q", info.DriverName, DriverName())
	}
	if info.DriverType != "purego" && info.DriverType != "cgo" {
		t.Errorf("unexpected driver type %q", info.DriverType)
	}
	if info.IsCGO != (info.DriverType == "cgo") {
		t.Errorf("IsCGO inconsistent with DriverType")
	}
}
