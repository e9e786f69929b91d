// Package configdb is the configuration database: the registry of
// filestores, context databases and the contexts assigned to them.
package configdb

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports an unknown context, filestore or database id.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a registration that clashes with existing rows.
var ErrConflict = errors.New("conflict")

const busyTimeoutMS = 5000

// Directory is the SQLite-backed configuration database.
type Directory struct {
	db *sql.DB
}

// Open opens the configuration database at path and applies its schema.
func Open(path string) (*Directory, error) {
	if path == "" {
		return nil, fmt.Errorf("config db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply config schema: %w", err)
	}
	return &Directory{db: db}, nil
}

// Close closes the database.
func (d *Directory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS filestores (
  id INTEGER PRIMARY KEY,
  uri TEXT NOT NULL UNIQUE,
  max_contexts INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS databases (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  path TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contexts (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  filestore_id INTEGER NOT NULL REFERENCES filestores(id),
  database_id INTEGER NOT NULL REFERENCES databases(id),
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS context_usage (
  context_id INTEGER PRIMARY KEY REFERENCES contexts(id) ON DELETE CASCADE,
  used_bytes INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contexts_filestore ON contexts(filestore_id);
CREATE INDEX IF NOT EXISTS idx_contexts_database ON contexts(database_id);
`

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
