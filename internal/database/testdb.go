package database

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// SQLite mirror of the MySQL schema.  The repositories restrict
// themselves to a portable SQL subset, so the same queries run against
// either engine.
var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS patrons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		category TEXT NOT NULL,
		max_active_loans INTEGER NOT NULL,
		max_electronic_loans INTEGER NOT NULL,
		active_loans INTEGER NOT NULL DEFAULT 0,
		active_electronic INTEGER NOT NULL DEFAULT 0,
		suspended INTEGER NOT NULL DEFAULT 0,
		suspended_until TEXT NULL,
		suspension_reason TEXT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		media_type TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS copies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_copies_item ON copies (item_id)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patron_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		copy_id INTEGER NOT NULL,
		borrowed_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		returned_at TEXT NULL,
		fine_cents INTEGER NOT NULL DEFAULT 0,
		due_notice_sent INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_patron_status ON loans (patron_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_item ON loans (item_id)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patron_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		copy_id INTEGER NULL,
		pickup_code TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		ready_at TEXT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_item_status ON reservations (item_id, status)`,
}

// NewTestDB creates a fresh in-memory SQLite database with the schema applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	// The in-memory database lives and dies with a single connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaSQLite {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatalf("creating test database schema: %v", err)
		}
	}

	t.Cleanup(func() { db.Close() })

	return db
}
