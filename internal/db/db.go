// Package db provides the local SQLite database used by homepanel.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Action ledger - append-only record of every mutation this panel sent to the backend
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS action_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			target TEXT,
			result TEXT NOT NULL,
			status INTEGER,
			error TEXT,
			source TEXT,
			request_id TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_action_ledger_ts ON action_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_action_ledger_resource_ts ON action_ledger(resource, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create action_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
