package testutil

import (
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// OpenDB opens an in-memory sqlite database with schema applied. The
// database is closed when the test ends.
func OpenDB(t testing.TB, schema string) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every pooled connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if schema == "" {
		return db
	}
	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return db
}
