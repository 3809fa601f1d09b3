package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/classgate/classgate-api/internal/models"
)

// DirectoryRepository reads the external user directory. It is consumed
// read-only; role resolution never writes back.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// FindRecord returns the raw directory profile for a user.
func (r *DirectoryRepository) FindRecord(ctx context.Context, userID string) (*models.DirectoryRecord, error) {
	const query = `SELECT id, display_name, email, role_tag, institution_name, registration_no, academic_level, home_address
        FROM directory_users WHERE id = $1`
	var record models.DirectoryRecord
	if err := r.db.GetContext(ctx, &record, query, userID); err != nil {
		return nil, err
	}
	return &record, nil
}

// InCollection reports membership in one of the role reference collections.
// The collection name is mapped to a fixed table; unknown names are an error
// rather than an injection vector.
func (r *DirectoryRepository) InCollection(ctx context.Context, collection, userID string) (bool, error) {
	tables := map[string]string{
		"professors": "directory_professors",
		"students":   "directory_students",
		"parents":    "directory_parents",
	}
	table, ok := tables[collection]
	if !ok {
		return false, fmt.Errorf("unknown directory collection %q", collection)
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE user_id = $1 LIMIT 1", table)
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check directory collection %s: %w", collection, err)
	}
	return true, nil
}
