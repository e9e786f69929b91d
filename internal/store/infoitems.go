package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cfsck/internal/models"
)

const infoitemColumns = "context_id, id, folder_id, title, description, created_by, current_version, created_at, updated_at"
const versionColumns = "context_id, infoitem_id, version, blob_id, title, description, filename, file_size, media_type, version_comment, categories, created_by, created_at, updated_at"

// CreateInfoitem inserts an infoitem with all of its versions in one transaction.
// A zero ID is allocated from the context's infoitem sequence; a zero version
// number is assigned in slice order starting at 1.
func (s *Store) CreateInfoitem(ctx context.Context, item *models.Infoitem) (err error) {
	if item == nil {
		return fmt.Errorf("infoitem is required")
	}
	if len(item.Versions) == 0 {
		return fmt.Errorf("infoitem needs at least one version")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err := insertInfoitemTx(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}

func insertInfoitemTx(ctx context.Context, tx *sql.Tx, item *models.Infoitem) error {
	if item.ID == 0 {
		id, err := nextIDTx(ctx, tx, item.ContextID, sequenceInfoitem)
		if err != nil {
			return err
		}
		item.ID = id
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	current := 0
	for i := range item.Versions {
		v := &item.Versions[i]
		v.ContextID = item.ContextID
		v.InfoitemID = item.ID
		if v.Version == 0 {
			v.Version = i + 1
		}
		if v.CreatedBy == 0 {
			v.CreatedBy = item.CreatedBy
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = item.CreatedAt
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = v.CreatedAt
		}
		if v.Version > current {
			current = v.Version
		}
	}
	if item.CurrentVersion == 0 {
		item.CurrentVersion = current
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO infoitems (`+infoitemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ContextID,
		item.ID,
		item.FolderID,
		nullIfEmpty(item.Title),
		nullIfEmpty(item.Description),
		item.CreatedBy,
		item.CurrentVersion,
		dbFormatTime(item.CreatedAt),
		dbFormatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert infoitem %d: %w", item.ID, err)
	}

	for _, v := range item.Versions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO infoitem_versions (`+versionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			v.ContextID,
			v.InfoitemID,
			v.Version,
			nullIfEmpty(v.BlobID),
			nullIfEmpty(v.Title),
			nullIfEmpty(v.Description),
			nullIfEmpty(v.Filename),
			v.FileSize,
			nullIfEmpty(v.MediaType),
			nullIfEmpty(v.VersionComment),
			nullIfEmpty(v.Categories),
			v.CreatedBy,
			dbFormatTime(v.CreatedAt),
			dbFormatTime(v.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert infoitem %d version %d: %w", v.InfoitemID, v.Version, err)
		}
	}
	return nil
}

// GetInfoitem returns one infoitem with its versions, or nil when absent.
func (s *Store) GetInfoitem(ctx context.Context, contextID, id int) (*models.Infoitem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+infoitemColumns+` FROM infoitems WHERE context_id = ? AND id = ?`, contextID, id)
	item, err := scanInfoitem(row)
	if err != nil || item == nil {
		return item, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+versionColumns+` FROM infoitem_versions WHERE context_id = ? AND infoitem_id = ? ORDER BY version`, contextID, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanInfoitemVersion(rows)
		if err != nil {
			return nil, err
		}
		item.Versions = append(item.Versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return item, nil
}

// ListInfoitemBlobIDs returns the distinct non-empty blob ids referenced by
// any infoitem version of the context, in ascending order.
func (s *Store) ListInfoitemBlobIDs(ctx context.Context, contextID int) ([]string, error) {
	return s.listBlobIDs(ctx, `
		SELECT DISTINCT blob_id FROM infoitem_versions
		WHERE context_id = ? AND blob_id IS NOT NULL AND blob_id <> ''
		ORDER BY blob_id
	`, contextID)
}

// RepointInfoitemBlob points every version of the context that references
// oldID at newID, records the new blob's size and media type and appends
// comment to the version comment. It returns the number of versions changed.
func (s *Store) RepointInfoitemBlob(ctx context.Context, contextID int, oldID, newID string, info models.BlobInfo, comment string) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE infoitem_versions
		SET blob_id = ?, file_size = ?, media_type = ?,
		    version_comment = COALESCE(version_comment, '') || ?,
		    updated_at = ?
		WHERE context_id = ? AND blob_id = ?
	`, newID, info.Size, nullIfEmpty(info.MediaType), comment, dbFormatTime(time.Now()), contextID, oldID)
	if err != nil {
		return 0, fmt.Errorf("repoint infoitem versions of %s: %w", oldID, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		err = fmt.Errorf("no infoitem version references blob %s: %w", oldID, ErrNotFound)
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteInfoitemVersionsByBlob removes every version of the context that
// references blobID. Infoitems left without versions are removed; the
// others get their current version reset to the highest one remaining.
// It returns the number of versions removed.
func (s *Store) DeleteInfoitemVersionsByBlob(ctx context.Context, contextID int, blobID string) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var itemIDs []int
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT infoitem_id FROM infoitem_versions WHERE context_id = ? AND blob_id = ?`, contextID, blobID)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		itemIDs = append(itemIDs, id)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(itemIDs) == 0 {
		err = fmt.Errorf("no infoitem version references blob %s: %w", blobID, ErrNotFound)
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM infoitem_versions WHERE context_id = ? AND blob_id = ?`, contextID, blobID)
	if err != nil {
		return 0, fmt.Errorf("delete infoitem versions of %s: %w", blobID, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}

	now := dbFormatTime(time.Now())
	for _, id := range itemIDs {
		var highest sql.NullInt64
		err = tx.QueryRowContext(ctx, `SELECT MAX(version) FROM infoitem_versions WHERE context_id = ? AND infoitem_id = ?`, contextID, id).Scan(&highest)
		if err != nil {
			return 0, err
		}
		if !highest.Valid {
			if _, err = tx.ExecContext(ctx, `DELETE FROM infoitems WHERE context_id = ? AND id = ?`, contextID, id); err != nil {
				return 0, fmt.Errorf("delete infoitem %d: %w", id, err)
			}
			continue
		}
		if _, err = tx.ExecContext(ctx, `UPDATE infoitems SET current_version = ?, updated_at = ? WHERE context_id = ? AND id = ?`, highest.Int64, now, contextID, id); err != nil {
			return 0, fmt.Errorf("update infoitem %d: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) listBlobIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func scanInfoitem(scanner interface{ Scan(dest ...any) error }) (*models.Infoitem, error) {
	var item models.Infoitem
	var title, description sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&item.ContextID,
		&item.ID,
		&item.FolderID,
		&title,
		&description,
		&item.CreatedBy,
		&item.CurrentVersion,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	item.Title = title.String
	item.Description = description.String

	var err error
	if item.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanInfoitemVersion(scanner interface{ Scan(dest ...any) error }) (*models.InfoitemVersion, error) {
	var v models.InfoitemVersion
	var blobID, title, description, filename, mediaType, comment, categories sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&v.ContextID,
		&v.InfoitemID,
		&v.Version,
		&blobID,
		&title,
		&description,
		&filename,
		&v.FileSize,
		&mediaType,
		&comment,
		&categories,
		&v.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	v.BlobID = blobID.String
	v.Title = title.String
	v.Description = description.String
	v.Filename = filename.String
	v.MediaType = mediaType.String
	v.VersionComment = comment.String
	v.Categories = categories.String

	var err error
	if v.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
