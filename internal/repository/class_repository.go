package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classgate/classgate-api/internal/models"
)

// ClassRepository handles persistence of classes and their lifecycle state.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, name, level, activation_code, establishment_id, creator_id, payment_status, state, publication_policy, created_at, updated_at`

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE id = $1`, classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	var conditions []string
	var args []interface{}

	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.EstablishmentID != "" {
		conditions = append(conditions, fmt.Sprintf("establishment_id = $%d", len(args)+1))
		args = append(args, filter.EstablishmentID)
	}
	if filter.CreatorID != "" {
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", len(args)+1))
		args = append(args, filter.CreatorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"created_at": "created_at",
		"state":      "state",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM classes%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		classColumns, clause, orderBy, order, size, offset)

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM classes" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Create persists a new class in PENDING_APPROVAL.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.State == "" {
		class.State = models.ClassStatePendingApproval
	}
	if class.PaymentStatus == "" {
		class.PaymentStatus = models.PaymentNone
	}
	if class.PublicationPolicy == "" {
		class.PublicationPolicy = models.PublishEveryone
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, activation_code, establishment_id, creator_id, payment_status, state, publication_policy, created_at, updated_at)
        VALUES (:id, :name, :level, :activation_code, :establishment_id, :creator_id, :payment_status, :state, :publication_policy, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// TransitionState moves a class out of PENDING_APPROVAL with a conditional
// update. Returns sql.ErrNoRows when the class is no longer pending, which
// is how two concurrent resolutions are prevented from both succeeding.
func (r *ClassRepository) TransitionState(ctx context.Context, id string, to models.ClassState) error {
	const query = `UPDATE classes SET state = $2, updated_at = $3 WHERE id = $1 AND state = $4`
	result, err := r.db.ExecContext(ctx, query, id, to, time.Now().UTC(), models.ClassStatePendingApproval)
	if err != nil {
		return fmt.Errorf("transition class state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check class transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordDecision stores the audit row for an approval or rejection.
func (r *ClassRepository) RecordDecision(ctx context.Context, decision *models.ClassDecision) error {
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_decisions (class_id, state, decided_by, self_decided, reason_codes, note, decided_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	codes := strings.Join(decision.ReasonCodes, ",")
	if _, err := r.db.ExecContext(ctx, query, decision.ClassID, decision.State, decision.DecidedBy, decision.SelfDecided, codes, decision.Note, decision.DecidedAt); err != nil {
		return fmt.Errorf("record class decision: %w", err)
	}
	return nil
}

// UpdatePublicationPolicy changes the class-level default posting rule.
func (r *ClassRepository) UpdatePublicationPolicy(ctx context.Context, id string, policy models.PublicationPolicy) error {
	const query = `UPDATE classes SET publication_policy = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, policy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update publication policy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check policy update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
