package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver registration.
)

// Timestamps are stored as UTC strings in this layout.
const timeLayout = "2006-01-02T15:04:05Z"

type DB struct {
	*sql.DB
}

// NewConnection opens the SQLite database at path and applies pending
// migrations.
func NewConnection(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	wrapped := &DB{DB: db}

	if _, _, err := RunMigrations(wrapped); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return wrapped, nil
}
