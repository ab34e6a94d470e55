package database

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	metricLike = "like"
	metricSave = "save"
)

var _ EngagementRepository = (*SQLEngagementRepository)(nil)

type SQLEngagementRepository struct {
	db *DB
}

func NewEngagementRepository(db *DB) *SQLEngagementRepository {
	return &SQLEngagementRepository{db: db}
}

// ToggleLike flips the viewer's like and returns the absolute state and the
// item's like count after the change.
func (r *SQLEngagementRepository) ToggleLike(ctx context.Context, itemID, userID string) (bool, int, error) {
	var (
		active bool
		count  int
	)

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		active, err = toggle(ctx, tx, itemID, userID, metricLike)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM engagements WHERE item_id = ? AND metric = ?
		`, itemID, metricLike).Scan(&count)
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to toggle like: %w", err)
	}

	return active, count, nil
}

func (r *SQLEngagementRepository) ToggleSave(ctx context.Context, itemID, userID string) (bool, error) {
	var active bool

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		active, err = toggle(ctx, tx, itemID, userID, metricSave)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle save: %w", err)
	}

	return active, nil
}

func (r *SQLEngagementRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toggle(ctx context.Context, tx *sql.Tx, itemID, userID, metric string) (bool, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = ?)`, itemID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM engagements WHERE item_id = ? AND user_id = ? AND metric = ?
	`, itemID, userID, metric)
	if err != nil {
		return false, err
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engagements (item_id, user_id, metric) VALUES (?, ?, ?)
	`, itemID, userID, metric); err != nil {
		return false, err
	}
	return true, nil
}
