package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/classgate/classgate-api/internal/models"
)

// RightsRepository handles persistence of per-user publication rights.
type RightsRepository struct {
	db *sqlx.DB
}

// NewRightsRepository constructs the repository.
func NewRightsRepository(db *sqlx.DB) *RightsRepository {
	return &RightsRepository{db: db}
}

// Find returns the explicit right for a (user, class) pair.
func (r *RightsRepository) Find(ctx context.Context, userID, classID string) (*models.PublicationRight, error) {
	const query = `SELECT user_id, class_id, can_publish, can_moderate, updated_at FROM publication_rights WHERE user_id = $1 AND class_id = $2`
	var right models.PublicationRight
	if err := r.db.GetContext(ctx, &right, query, userID, classID); err != nil {
		return nil, err
	}
	return &right, nil
}

// FindModerator returns the right row holding can_moderate for a class,
// or sql.ErrNoRows when the class has no moderator.
func (r *RightsRepository) FindModerator(ctx context.Context, classID string) (*models.PublicationRight, error) {
	const query = `SELECT user_id, class_id, can_publish, can_moderate, updated_at FROM publication_rights WHERE class_id = $1 AND can_moderate = TRUE`
	var right models.PublicationRight
	if err := r.db.GetContext(ctx, &right, query, classID); err != nil {
		return nil, err
	}
	return &right, nil
}

// Upsert writes the right for a (user, class) pair. When the new right
// carries can_moderate it clears the flag on every other user of the class
// inside the same transaction, so moderator uniqueness holds at the point
// of assignment.
func (r *RightsRepository) Upsert(ctx context.Context, right *models.PublicationRight) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rights tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	right.UpdatedAt = time.Now().UTC()

	if right.CanModerate {
		const clear = `UPDATE publication_rights SET can_moderate = FALSE, updated_at = $3 WHERE class_id = $1 AND user_id <> $2 AND can_moderate = TRUE`
		if _, err := tx.ExecContext(ctx, clear, right.ClassID, right.UserID, right.UpdatedAt); err != nil {
			return fmt.Errorf("clear previous moderator: %w", err)
		}
	}

	const upsert = `INSERT INTO publication_rights (user_id, class_id, can_publish, can_moderate, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, class_id) DO UPDATE SET can_publish = $3, can_moderate = $4, updated_at = $5`
	if _, err := tx.ExecContext(ctx, upsert, right.UserID, right.ClassID, right.CanPublish, right.CanModerate, right.UpdatedAt); err != nil {
		return fmt.Errorf("upsert publication right: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rights tx: %w", err)
	}
	return nil
}

// ClearModerator drops the can_moderate flag for whichever user holds it.
// Returns the number of rows touched; zero means the class had none.
func (r *RightsRepository) ClearModerator(ctx context.Context, classID string) (int64, error) {
	const query = `UPDATE publication_rights SET can_moderate = FALSE, updated_at = $2 WHERE class_id = $1 AND can_moderate = TRUE`
	result, err := r.db.ExecContext(ctx, query, classID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear moderator: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check moderator clear rows: %w", err)
	}
	return rows, nil
}

// Delete removes the explicit right for a (user, class) pair.
func (r *RightsRepository) Delete(ctx context.Context, userID, classID string) error {
	const query = `DELETE FROM publication_rights WHERE user_id = $1 AND class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, classID); err != nil {
		return fmt.Errorf("delete publication right: %w", err)
	}
	return nil
}

// ListByClass returns all explicit rights for a class.
func (r *RightsRepository) ListByClass(ctx context.Context, classID string) ([]models.PublicationRight, error) {
	const query = `SELECT user_id, class_id, can_publish, can_moderate, updated_at FROM publication_rights WHERE class_id = $1 ORDER BY updated_at DESC`
	var rights []models.PublicationRight
	if err := r.db.SelectContext(ctx, &rights, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("list class rights: %w", err)
	}
	return rights, nil
}
