package configdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cfsck/internal/models"
)

// RegisterFilestore stores a filestore. A zero ID lets the database pick one.
func (d *Directory) RegisterFilestore(ctx context.Context, fs *models.Filestore) error {
	if fs == nil {
		return fmt.Errorf("filestore is required")
	}
	u, _, err := models.ParseFilestoreURI(fs.URI)
	if err != nil {
		return err
	}
	fs.URI = u.String()
	if fs.MaxContexts < 0 {
		return fmt.Errorf("max contexts must not be negative")
	}
	if fs.CreatedAt.IsZero() {
		fs.CreatedAt = time.Now().UTC()
	}

	id, err := d.insert(ctx, fs.ID,
		`INSERT INTO filestores (id, uri, max_contexts, created_at) VALUES (?, ?, ?, ?)`,
		fs.URI, fs.MaxContexts, formatTime(fs.CreatedAt))
	if err != nil {
		return fmt.Errorf("register filestore %s: %w", fs.URI, err)
	}
	fs.ID = id
	return nil
}

// GetFilestore returns the filestore with id or ErrNotFound.
func (d *Directory) GetFilestore(ctx context.Context, id int) (*models.Filestore, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, uri, max_contexts, created_at FROM filestores WHERE id = ?`, id)
	fs, err := scanFilestore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filestore %d: %w", id, ErrNotFound)
	}
	return fs, err
}

// ListFilestores returns every filestore in ascending id order.
func (d *Directory) ListFilestores(ctx context.Context) ([]models.Filestore, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, uri, max_contexts, created_at FROM filestores ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Filestore{}
	for rows.Next() {
		fs, err := scanFilestore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fs)
	}
	return out, rows.Err()
}

// RegisterDatabase stores a context database registration.
func (d *Directory) RegisterDatabase(ctx context.Context, db *models.Database) error {
	if db == nil {
		return fmt.Errorf("database is required")
	}
	db.Name = strings.TrimSpace(db.Name)
	db.Path = strings.TrimSpace(db.Path)
	if db.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if db.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if db.CreatedAt.IsZero() {
		db.CreatedAt = time.Now().UTC()
	}

	id, err := d.insert(ctx, db.ID,
		`INSERT INTO databases (id, name, path, created_at) VALUES (?, ?, ?, ?)`,
		db.Name, db.Path, formatTime(db.CreatedAt))
	if err != nil {
		return fmt.Errorf("register database %s: %w", db.Name, err)
	}
	db.ID = id
	return nil
}

// GetDatabase returns the database with id or ErrNotFound.
func (d *Directory) GetDatabase(ctx context.Context, id int) (*models.Database, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, name, path, created_at FROM databases WHERE id = ?`, id)
	db, err := scanDatabase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("database %d: %w", id, ErrNotFound)
	}
	return db, err
}

// ListDatabases returns every database in ascending id order.
func (d *Directory) ListDatabases(ctx context.Context) ([]models.Database, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, path, created_at FROM databases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Database{}
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *db)
	}
	return out, rows.Err()
}

// RegisterContext assigns a new context to an existing filestore and
// database. A filestore with a positive max_contexts refuses contexts
// beyond that count.
func (d *Directory) RegisterContext(ctx context.Context, c *models.Context) (err error) {
	if c == nil {
		return fmt.Errorf("context is required")
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("context name is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var maxContexts, assigned int
	err = tx.QueryRowContext(ctx, `SELECT max_contexts FROM filestores WHERE id = ?`, c.FilestoreID).Scan(&maxContexts)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("filestore %d: %w", c.FilestoreID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM databases WHERE id = ?`, c.DatabaseID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("database %d: %w", c.DatabaseID, ErrNotFound)
	}
	if maxContexts > 0 {
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM contexts WHERE filestore_id = ?`, c.FilestoreID).Scan(&assigned); err != nil {
			return err
		}
		if assigned >= maxContexts {
			return fmt.Errorf("filestore %d is full (%d contexts): %w", c.FilestoreID, maxContexts, ErrConflict)
		}
	}

	var id any
	if c.ID != 0 {
		id = c.ID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO contexts (id, name, filestore_id, database_id, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, c.Name, c.FilestoreID, c.DatabaseID, boolToInt(c.Enabled), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("register context %s: %w", c.Name, classifyInsertError(err))
	}
	if c.ID == 0 {
		last, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = int(last)
	}

	return tx.Commit()
}

// SetContextEnabled flips the enabled flag of a context.
func (d *Directory) SetContextEnabled(ctx context.Context, id int, enabled bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE contexts SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("context %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetContextUsage records the recounted filestore usage of a context.
func (d *Directory) SetContextUsage(ctx context.Context, id int, usedBytes int64) error {
	if usedBytes < 0 {
		return fmt.Errorf("used bytes must be >= 0")
	}
	if _, err := d.GetContext(ctx, id); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO context_usage (context_id, used_bytes, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET used_bytes = excluded.used_bytes, updated_at = excluded.updated_at`,
		id, usedBytes, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record usage of context %d: %w", id, err)
	}
	return nil
}

// GetContextUsage returns the last recorded usage of a context, or
// ErrNotFound when it was never recounted.
func (d *Directory) GetContextUsage(ctx context.Context, id int) (*models.ContextUsage, error) {
	var usage models.ContextUsage
	var updatedAt string
	err := d.db.QueryRowContext(ctx,
		`SELECT context_id, used_bytes, updated_at FROM context_usage WHERE context_id = ?`, id,
	).Scan(&usage.ContextID, &usage.UsedBytes, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("usage of context %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	usage.UpdatedAt, err = parseTime(updatedAt)
	return &usage, err
}

// GetContext resolves a context id to its assignment, or ErrNotFound.
func (d *Directory) GetContext(ctx context.Context, id int) (*models.Context, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts WHERE id = ?`, id)
	c, err := scanContext(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context %d: %w", id, ErrNotFound)
	}
	return c, err
}

// ContextFilter narrows ListContexts. Zero fields match everything.
type ContextFilter struct {
	FilestoreID int
	DatabaseID  int
}

// ListContexts returns contexts matching filter in ascending id order.
func (d *Directory) ListContexts(ctx context.Context, filter ContextFilter) ([]models.Context, error) {
	query := `SELECT ` + contextColumns + ` FROM contexts`
	var conditions []string
	var args []any
	if filter.FilestoreID != 0 {
		conditions = append(conditions, "filestore_id = ?")
		args = append(args, filter.FilestoreID)
	}
	if filter.DatabaseID != 0 {
		conditions = append(conditions, "database_id = ?")
		args = append(args, filter.DatabaseID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Context{}
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListByFilestore returns the contexts stored in filestore id. An unknown
// filestore is ErrNotFound; a known one without contexts is an empty list.
func (d *Directory) ListByFilestore(ctx context.Context, id int) ([]models.Context, error) {
	if _, err := d.GetFilestore(ctx, id); err != nil {
		return nil, err
	}
	return d.ListContexts(ctx, ContextFilter{FilestoreID: id})
}

// ListByDatabase returns the contexts kept in database id.
func (d *Directory) ListByDatabase(ctx context.Context, id int) ([]models.Context, error) {
	if _, err := d.GetDatabase(ctx, id); err != nil {
		return nil, err
	}
	return d.ListContexts(ctx, ContextFilter{DatabaseID: id})
}

// ListAll returns every registered context.
func (d *Directory) ListAll(ctx context.Context) ([]models.Context, error) {
	return d.ListContexts(ctx, ContextFilter{})
}

const contextColumns = "id, name, filestore_id, database_id, enabled, created_at"

func (d *Directory) insert(ctx context.Context, id int, query string, args ...any) (int, error) {
	var idArg any
	if id != 0 {
		idArg = id
	}
	res, err := d.db.ExecContext(ctx, query, append([]any{idArg}, args...)...)
	if err != nil {
		return 0, classifyInsertError(err)
	}
	if id != 0 {
		return id, nil
	}
	last, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(last), nil
}

func classifyInsertError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%v: %w", err, ErrConflict)
	}
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilestore(s rowScanner) (*models.Filestore, error) {
	var fs models.Filestore
	var createdAt string
	if err := s.Scan(&fs.ID, &fs.URI, &fs.MaxContexts, &createdAt); err != nil {
		return nil, err
	}
	var err error
	fs.CreatedAt, err = parseTime(createdAt)
	return &fs, err
}

func scanDatabase(s rowScanner) (*models.Database, error) {
	var db models.Database
	var createdAt string
	if err := s.Scan(&db.ID, &db.Name, &db.Path, &createdAt); err != nil {
		return nil, err
	}
	var err error
	db.CreatedAt, err = parseTime(createdAt)
	return &db, err
}

func scanContext(s rowScanner) (*models.Context, error) {
	var c models.Context
	var enabled int
	var createdAt string
	if err := s.Scan(&c.ID, &c.Name, &c.FilestoreID, &c.DatabaseID, &enabled, &createdAt); err != nil {
		return nil, err
	}
	c.Enabled = enabled == 1
	var err error
	c.CreatedAt, err = parseTime(createdAt)
	return &c, err
}
