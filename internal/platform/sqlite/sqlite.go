// Package sqlite opens the export store and applies the embedded schema.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

//go:embed migrations/001_initial.sql
var schema string

// Pragmas applied to every database. WAL keeps enqueue writes from blocking
// the worker's status updates; the busy timeout covers the brief claim
// transaction.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

type DB struct {
	*sql.DB
}

// Open connects to the sqlite database at dsn, applies the pragmas and runs
// the schema migration. The schema is idempotent, so Open is safe on every
// boot.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database exists per connection; without this cap each
	// pooled connection would see its own empty schema.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{db}, nil
}
