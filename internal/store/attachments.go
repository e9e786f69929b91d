package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cfsck/internal/models"
)

const attachmentColumns = "context_id, id, module, attached_to, filename, file_size, media_type, comment, blob_id, created_by, created_at, updated_at"

// CreateAttachment inserts one attachment row. A zero ID is allocated from
// the context's attachment sequence.
func (s *Store) CreateAttachment(ctx context.Context, attachment *models.Attachment) (err error) {
	if attachment == nil {
		return fmt.Errorf("attachment is required")
	}
	if attachment.BlobID == "" {
		return fmt.Errorf("attachment blob id is required")
	}
	module, err := models.ParseAttachmentModule(attachment.Module)
	if err != nil {
		return err
	}
	attachment.Module = string(module)

	now := time.Now().UTC()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = now
	}
	if attachment.UpdatedAt.IsZero() {
		attachment.UpdatedAt = attachment.CreatedAt
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

	if attachment.ID == 0 {
		id, err := nextIDTx(ctx, tx, attachment.ContextID, sequenceAttachment)
		if err != nil {
			return err
		}
		attachment.ID = id
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attachment.ContextID,
		attachment.ID,
		attachment.Module,
		attachment.AttachedTo,
		nullIfEmpty(attachment.Filename),
		attachment.FileSize,
		nullIfEmpty(attachment.MediaType),
		nullIfEmpty(attachment.Comment),
		attachment.BlobID,
		attachment.CreatedBy,
		dbFormatTime(attachment.CreatedAt),
		dbFormatTime(attachment.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert attachment %d: %w", attachment.ID, err)
	}

	return tx.Commit()
}

// GetAttachment returns one attachment, or nil when absent.
func (s *Store) GetAttachment(ctx context.Context, contextID, id int) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE context_id = ? AND id = ?`, contextID, id)
	return scanAttachment(row)
}

// ListAttachmentBlobIDs returns the distinct blob ids referenced by the
// context's attachments, in ascending order.
func (s *Store) ListAttachmentBlobIDs(ctx context.Context, contextID int) ([]string, error) {
	return s.listBlobIDs(ctx, `
		SELECT DISTINCT blob_id FROM attachments
		WHERE context_id = ? AND blob_id <> ''
		ORDER BY blob_id
	`, contextID)
}

// RepointAttachmentBlob points every attachment of the context that
// references oldID at newID, records size and media type of the new blob and
// appends comment. It returns the number of attachments changed.
func (s *Store) RepointAttachmentBlob(ctx context.Context, contextID int, oldID, newID string, info models.BlobInfo, comment string) (n int64, err error) {
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
		UPDATE attachments
		SET blob_id = ?, file_size = ?, media_type = ?,
		    comment = COALESCE(comment, '') || ?,
		    updated_at = ?
		WHERE context_id = ? AND blob_id = ?
	`, newID, info.Size, nullIfEmpty(info.MediaType), comment, dbFormatTime(time.Now()), contextID, oldID)
	if err != nil {
		return 0, fmt.Errorf("repoint attachments of %s: %w", oldID, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("no attachment references blob %s: %w", oldID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteAttachmentsByBlob removes every attachment of the context that
// references blobID and returns how many were removed.
func (s *Store) DeleteAttachmentsByBlob(ctx context.Context, contextID int, blobID string) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE context_id = ? AND blob_id = ?`, contextID, blobID)
	if err != nil {
		return 0, fmt.Errorf("delete attachments of %s: %w", blobID, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("no attachment references blob %s: %w", blobID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func scanAttachment(scanner interface{ Scan(dest ...any) error }) (*models.Attachment, error) {
	var a models.Attachment
	var filename, mediaType, comment sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&a.ContextID,
		&a.ID,
		&a.Module,
		&a.AttachedTo,
		&filename,
		&a.FileSize,
		&mediaType,
		&comment,
		&a.BlobID,
		&a.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	a.Filename = filename.String
	a.MediaType = mediaType.String
	a.Comment = comment.String

	var err error
	if a.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
