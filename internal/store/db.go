// Package store persists forests, sampling designs and stem datasets in
// SQLite. Schema changes run through embedded golang-migrate migrations;
// writes go through a busy-retry wrapper so concurrent API requests do not
// surface transient lock errors.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rakuri2026/forest-management-sub001/internal/monitoring"
)

// DB wraps the SQLite handle used by all stores.
type DB struct {
	*sql.DB

	// Path is the database file as opened, kept for admin tooling labels.
	Path string
}

// Open opens (or creates) the SQLite database at path and applies the
// connection pragmas. The schema is managed separately via MigrateUp.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// WAL keeps readers unblocked during design writes; the busy timeout
	// covers the checkpointer, foreign keys guard block and stem rows.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return &DB{DB: db, Path: path}, nil
}

// retryOnBusy retries a write a few times when SQLite reports the database
// as locked. The backoff is short; callers hold no transactions across
// calls so a later attempt usually lands.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		monitoring.Logf("store: database busy, retrying (attempt %d/%d)", attempt+1, maxAttempts)
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// IsNotFound reports whether err is a store not-found error, so handlers
// can map it to a 404 without importing sql.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
