package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/getpup/pupstreams/es"
)

// GetCheckpoint returns the id of the last global-stream event processed by
// the named projection, or "" when it has not processed anything yet.
func (r *Repository) GetCheckpoint(ctx context.Context, tx es.DBTX, projectionName string) (string, error) {
	query := fmt.Sprintf(`
		SELECT last_event_id
		FROM %s
		WHERE projection_name = ?
	`, r.config.CheckpointsTable)

	var checkpoint string
	err := tx.QueryRowContext(ctx, r.dialect.Rebind(query), projectionName).Scan(&checkpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return checkpoint, nil
}

// UpdateCheckpoint records eventID as the projection's checkpoint.
// It should run in the same transaction as the projection's own writes.
func (r *Repository) UpdateCheckpoint(ctx context.Context, tx es.DBTX, projectionName, eventID string) error {
	// Delete-then-insert keeps the statement portable across engines.
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE projection_name = ?`, r.config.CheckpointsTable)
	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(deleteQuery), projectionName); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (projection_name, last_event_id)
		VALUES (?, ?)
	`, r.config.CheckpointsTable)
	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(insertQuery), projectionName, eventID); err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}
	return nil
}
