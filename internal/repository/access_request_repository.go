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

// AccessRequestRepository handles persistence of join requests.
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository constructs the repository.
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

const accessRequestColumns = `id, requester_id, class_id, declared_role, status, rejection_reason, requested_at, resolved_at, resolved_by`

// FindByID returns a request by its ID.
func (r *AccessRequestRepository) FindByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM access_requests WHERE id = $1`, accessRequestColumns)
	var request models.AccessRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ExistsPending checks whether the requester already has a pending request
// for the class.
func (r *AccessRequestRepository) ExistsPending(ctx context.Context, requesterID, classID string) (bool, error) {
	const query = `SELECT 1 FROM access_requests WHERE requester_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, requesterID, classID, models.AccessRequestPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return true, nil
}

// Create persists a new request in PENDING.
func (r *AccessRequestRepository) Create(ctx context.Context, request *models.AccessRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.AccessRequestPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO access_requests (id, requester_id, class_id, declared_role, status, requested_at)
        VALUES (:id, :requester_id, :class_id, :declared_role, :status, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

// ResolveParams carries the outcome of a request resolution.
type ResolveParams struct {
	ID         string
	Status     models.AccessRequestStatus
	Reason     *string
	ResolvedBy string
	ResolvedAt time.Time
}

// Resolve finalises a pending request with a conditional update. Returns
// sql.ErrNoRows when the request is already terminal, making resolution
// one-shot under concurrent callers.
func (r *AccessRequestRepository) Resolve(ctx context.Context, params ResolveParams) error {
	return resolveAccessRequest(ctx, r.db, params)
}

// ResolveTx is Resolve executed inside an existing transaction.
func (r *AccessRequestRepository) ResolveTx(ctx context.Context, tx *sqlx.Tx, params ResolveParams) error {
	return resolveAccessRequest(ctx, tx, params)
}

func resolveAccessRequest(ctx context.Context, execer sqlx.ExtContext, params ResolveParams) error {
	query := fmt.Sprintf(`UPDATE access_requests SET status = $2, rejection_reason = $3, resolved_by = $4, resolved_at = $5
        WHERE id = $1 AND status = '%s'`, models.AccessRequestPending)
	result, err := execer.ExecContext(ctx, query, params.ID, params.Status, params.Reason, params.ResolvedBy, params.ResolvedAt)
	if err != nil {
		return fmt.Errorf("resolve access request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request resolution rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns requests filtered by the provided criteria.
func (r *AccessRequestRepository) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error) {
	base := `FROM access_requests ar
LEFT JOIN directory_users du ON du.id = ar.requester_id
LEFT JOIN classes c ON c.id = ar.class_id`
	var conditions []string
	var args []interface{}

	if filter.RequesterID != "" {
		conditions = append(conditions, fmt.Sprintf("ar.requester_id = $%d", len(args)+1))
		args = append(args, filter.RequesterID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("ar.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"requested_at":   "ar.requested_at",
		"resolved_at":    "ar.resolved_at",
		"requester_name": "du.display_name",
		"class_name":     "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "ar.requested_at"
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

	query := fmt.Sprintf(`SELECT ar.id, ar.requester_id, ar.class_id, ar.declared_role, ar.status, ar.rejection_reason,
        ar.requested_at, ar.resolved_at, ar.resolved_by,
        COALESCE(du.display_name, '') AS requester_name, COALESCE(c.name, '') AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var requests []models.AccessRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list access requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count access requests: %w", err)
	}
	return requests, total, nil
}
