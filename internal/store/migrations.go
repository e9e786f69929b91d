package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all context database migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: users, infoitems, infoitem versions, attachments, sequences",
		SQL: `
CREATE TABLE IF NOT EXISTS users (
  context_id INTEGER NOT NULL,
  id INTEGER NOT NULL,
  username TEXT NOT NULL,
  is_admin INTEGER NOT NULL DEFAULT 0,
  infostore_folder_id INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (context_id, id),
  UNIQUE (context_id, username)
);

CREATE TABLE IF NOT EXISTS infoitems (
  context_id INTEGER NOT NULL,
  id INTEGER NOT NULL,
  folder_id INTEGER NOT NULL,
  title TEXT,
  description TEXT,
  created_by INTEGER NOT NULL,
  current_version INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (context_id, id)
);

CREATE TABLE IF NOT EXISTS infoitem_versions (
  context_id INTEGER NOT NULL,
  infoitem_id INTEGER NOT NULL,
  version INTEGER NOT NULL,
  blob_id TEXT,
  title TEXT,
  description TEXT,
  filename TEXT,
  file_size INTEGER NOT NULL DEFAULT 0,
  media_type TEXT,
  version_comment TEXT,
  categories TEXT,
  created_by INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (context_id, infoitem_id, version),
  FOREIGN KEY (context_id, infoitem_id) REFERENCES infoitems(context_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS attachments (
  context_id INTEGER NOT NULL,
  id INTEGER NOT NULL,
  module TEXT NOT NULL,
  attached_to INTEGER NOT NULL,
  filename TEXT,
  file_size INTEGER NOT NULL DEFAULT 0,
  media_type TEXT,
  comment TEXT,
  blob_id TEXT NOT NULL,
  created_by INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (context_id, id)
);

CREATE TABLE IF NOT EXISTS sequences (
  context_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  id INTEGER NOT NULL,
  PRIMARY KEY (context_id, name)
);

CREATE INDEX IF NOT EXISTS idx_infoitem_versions_blob ON infoitem_versions(context_id, blob_id);
CREATE INDEX IF NOT EXISTS idx_attachments_blob ON attachments(context_id, blob_id);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// runMigrations applies all pending migrations in order, one transaction each.
func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func (s *Store) MigrationPlan() (*MigrationStatus, error) {
	current, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
