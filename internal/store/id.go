package store

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	sequenceInfoitem   = "infoitem"
	sequenceAttachment = "attachment"
	sequenceUser       = "user"
)

// nextIDTx allocates the next id of a per-context sequence inside tx.
func nextIDTx(ctx context.Context, tx *sql.Tx, contextID int, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("sequence name is required")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (context_id, name, id) VALUES (?, ?, 1)
		ON CONFLICT (context_id, name) DO UPDATE SET id = id + 1
	`, contextID, name); err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", name, err)
	}

	var id int
	if err := tx.QueryRowContext(ctx, "SELECT id FROM sequences WHERE context_id = ? AND name = ?", contextID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("read sequence %s: %w", name, err)
	}
	return id, nil
}
