package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classgate/classgate-api/internal/models"
)

// GrantRepository handles persistence of class memberships.
type GrantRepository struct {
	db *sqlx.DB
}

// NewGrantRepository constructs the repository.
func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Create persists a new grant.
func (r *GrantRepository) Create(ctx context.Context, grant *models.Grant) error {
	return createGrant(ctx, r.db, grant)
}

// CreateTx is Create executed inside an existing transaction.
func (r *GrantRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, grant *models.Grant) error {
	return createGrant(ctx, tx, grant)
}

func createGrant(ctx context.Context, execer sqlx.ExtContext, grant *models.Grant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grants (id, user_id, class_id, role, request_id, granted_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := execer.ExecContext(ctx, query, grant.ID, grant.UserID, grant.ClassID, grant.Role, grant.RequestID, grant.GrantedAt); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// Find returns the grant for a (user, class) pair.
func (r *GrantRepository) Find(ctx context.Context, userID, classID string) (*models.Grant, error) {
	const query = `SELECT id, user_id, class_id, role, request_id, granted_at FROM grants WHERE user_id = $1 AND class_id = $2`
	var grant models.Grant
	if err := r.db.GetContext(ctx, &grant, query, userID, classID); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Exists reports whether the user holds a grant for the class.
func (r *GrantRepository) Exists(ctx context.Context, userID, classID string) (bool, error) {
	const query = `SELECT 1 FROM grants WHERE user_id = $1 AND class_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, classID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grant: %w", err)
	}
	return true, nil
}

// Delete removes the grant for a (user, class) pair. Deleting a grant that
// does not exist is not an error; revocation is idempotent.
func (r *GrantRepository) Delete(ctx context.Context, userID, classID string) error {
	const query = `DELETE FROM grants WHERE user_id = $1 AND class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, classID); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}

// ListByClass returns all grants for a class.
func (r *GrantRepository) ListByClass(ctx context.Context, classID string) ([]models.Grant, error) {
	const query = `SELECT id, user_id, class_id, role, request_id, granted_at FROM grants WHERE class_id = $1 ORDER BY granted_at`
	var grants []models.Grant
	if err := r.db.SelectContext(ctx, &grants, query, classID); err != nil {
		return nil, fmt.Errorf("list class grants: %w", err)
	}
	return grants, nil
}
