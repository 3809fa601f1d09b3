package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/internal/repository"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type accessRequestStore interface {
	FindByID(ctx context.Context, id string) (*models.AccessRequest, error)
	ExistsPending(ctx context.Context, requesterID, classID string) (bool, error)
	Create(ctx context.Context, request *models.AccessRequest) error
	Resolve(ctx context.Context, params repository.ResolveParams) error
	ResolveTx(ctx context.Context, tx *sqlx.Tx, params repository.ResolveParams) error
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error)
}

type grantStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, grant *models.Grant) error
	Delete(ctx context.Context, userID, classID string) error
}

type classStateReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type roleResolver interface {
	Resolve(ctx context.Context, userID string) (models.Role, error)
}

// SubmitAccessRequest describes a join request payload. The requester comes
// from the authenticated caller, never from the body.
type SubmitAccessRequest struct {
	RequesterID  string       `json:"-" validate:"required"`
	ClassID      string       `json:"class_id" validate:"required"`
	DeclaredRole *models.Role `json:"role,omitempty"`
}

// RejectAccessRequest carries the mandatory rejection reason.
type RejectAccessRequest struct {
	Reason string `json:"reason"`
}

// AccessRequestService is the ledger of join requests: it tracks pending
// requests, resolves them one-shot, and derives grants from approvals.
type AccessRequestService struct {
	db        *sqlx.DB
	repo      accessRequestStore
	grants    grantStore
	classes   classStateReader
	directory roleResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccessRequestService constructs AccessRequestService.
func NewAccessRequestService(db *sqlx.DB, repo accessRequestStore, grants grantStore, classes classStateReader, directory roleResolver, validate *validator.Validate, logger *zap.Logger) *AccessRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessRequestService{db: db, repo: repo, grants: grants, classes: classes, directory: directory, validator: validate, logger: logger}
}

// Submit creates a pending request. A resolved request does not block a
// fresh one; only a live pending request for the same pair does.
func (s *AccessRequestService) Submit(ctx context.Context, req SubmitAccessRequest) (*models.AccessRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid access request payload")
	}
	if req.DeclaredRole != nil && !req.DeclaredRole.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown declared role")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	pending, err := s.repo.ExistsPending(ctx, req.RequesterID, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePendingRequest, "")
	}

	request := &models.AccessRequest{
		RequesterID:  req.RequesterID,
		ClassID:      req.ClassID,
		DeclaredRole: req.DeclaredRole,
		Status:       models.AccessRequestPending,
		RequestedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access request")
	}
	return request, nil
}

// Approve resolves a pending request and creates the grant. The role is
// re-resolved against the directory here; the declared role is advisory
// only and may have gone stale between submission and approval.
func (s *AccessRequestService) Approve(ctx context.Context, requestID, actorID string) (*models.Grant, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "access request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access request")
	}
	if request.Status != models.AccessRequestPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request already resolved")
	}

	// A class still pending approval, or already rejected, accepts no
	// new memberships.
	class, err := s.classes.FindByID(ctx, request.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.State != models.ClassStateActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class is not active")
	}

	role, err := s.directory.Resolve(ctx, request.RequesterID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if err := s.repo.ResolveTx(ctx, tx, repository.ResolveParams{
		ID:         request.ID,
		Status:     models.AccessRequestApproved,
		ResolvedBy: actorID,
		ResolvedAt: now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve access request")
	}

	grant := &models.Grant{
		UserID:    request.RequesterID,
		ClassID:   request.ClassID,
		Role:      role,
		RequestID: &request.ID,
		GrantedAt: now,
	}
	if err := s.grants.CreateTx(ctx, tx, grant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grant")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approval")
	}

	s.logger.Info("access request approved",
		zap.String("request_id", request.ID),
		zap.String("class_id", request.ClassID),
		zap.String("requester_id", request.RequesterID),
		zap.String("resolved_role", string(role)))
	return grant, nil
}

// Reject resolves a pending request negatively. The reason is mandatory.
func (s *AccessRequestService) Reject(ctx context.Context, requestID, actorID string, req RejectAccessRequest) (*models.AccessRequest, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "access request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access request")
	}
	if request.Status != models.AccessRequestPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request already resolved")
	}

	now := time.Now().UTC()
	if err := s.repo.Resolve(ctx, repository.ResolveParams{
		ID:         request.ID,
		Status:     models.AccessRequestRejected,
		Reason:     &reason,
		ResolvedBy: actorID,
		ResolvedAt: now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject access request")
	}

	request.Status = models.AccessRequestRejected
	request.RejectionReason = &reason
	request.ResolvedAt = &now
	request.ResolvedBy = &actorID
	return request, nil
}

// RevokeGrant removes a user's membership. Revoking a grant that does not
// exist succeeds; the originating request is left untouched.
func (s *AccessRequestService) RevokeGrant(ctx context.Context, userID, classID string) error {
	if userID == "" || classID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id and class id are required")
	}
	if err := s.grants.Delete(ctx, userID, classID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke grant")
	}
	return nil
}

// List returns requests with pagination metadata.
func (s *AccessRequestService) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return requests, pagination, nil
}
