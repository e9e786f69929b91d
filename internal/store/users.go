package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cfsck/internal/models"
)

// CreateUser inserts a context user. A zero ID is allocated from the
// context's user sequence.
func (s *Store) CreateUser(ctx context.Context, user *models.User) (err error) {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return fmt.Errorf("username is required")
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

	if user.ID == 0 {
		id, err := nextIDTx(ctx, tx, user.ContextID, sequenceUser)
		if err != nil {
			return err
		}
		user.ID = id
	}

	isAdmin := 0
	if user.IsAdmin {
		isAdmin = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (context_id, id, username, is_admin, infostore_folder_id)
		VALUES (?, ?, ?, ?, ?)
	`, user.ContextID, user.ID, user.Username, isAdmin, user.InfostoreFolderID)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.Username, err)
	}

	return tx.Commit()
}

// GetContextAdmin returns the context's administrator. When several users
// carry the admin flag the one with the lowest id wins.
func (s *Store) GetContextAdmin(ctx context.Context, contextID int) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT context_id, id, username, is_admin, infostore_folder_id
		FROM users WHERE context_id = ? AND is_admin = 1
		ORDER BY id LIMIT 1
	`, contextID)

	var user models.User
	var isAdmin int
	if err := row.Scan(&user.ContextID, &user.ID, &user.Username, &isAdmin, &user.InfostoreFolderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("context %d has no admin: %w", contextID, ErrNotFound)
		}
		return nil, err
	}
	user.IsAdmin = isAdmin == 1
	return &user, nil
}
