package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type rightsStore interface {
	Find(ctx context.Context, userID, classID string) (*models.PublicationRight, error)
	FindModerator(ctx context.Context, classID string) (*models.PublicationRight, error)
	Upsert(ctx context.Context, right *models.PublicationRight) error
	ClearModerator(ctx context.Context, classID string) (int64, error)
}

// AssignRightsRequest describes a rights assignment payload.
type AssignRightsRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	CanPublish  bool   `json:"can_publish"`
	CanModerate bool   `json:"can_moderate"`
}

// RightsService tracks per-(user, class) publication and moderation rights
// and evaluates the effective publication permission.
type RightsService struct {
	repo      rightsStore
	classes   classStateReader
	directory roleResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRightsService constructs RightsService.
func NewRightsService(repo rightsStore, classes classStateReader, directory roleResolver, validate *validator.Validate, logger *zap.Logger) *RightsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RightsService{repo: repo, classes: classes, directory: directory, validator: validate, logger: logger}
}

// AssignRights writes the explicit right for a user in an active class.
// Granting moderation displaces the previous moderator in the same
// store transaction; uniqueness is enforced at assignment, never repaired
// after the fact.
func (s *RightsService) AssignRights(ctx context.Context, classID string, req AssignRightsRequest) (*models.PublicationRight, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rights payload")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.State != models.ClassStateActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class is not active")
	}

	right := &models.PublicationRight{
		UserID:      req.UserID,
		ClassID:     classID,
		CanPublish:  req.CanPublish,
		CanModerate: req.CanModerate,
	}
	if err := s.repo.Upsert(ctx, right); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign rights")
	}

	s.logger.Info("publication rights assigned",
		zap.String("class_id", classID),
		zap.String("user_id", req.UserID),
		zap.Bool("can_publish", req.CanPublish),
		zap.Bool("can_moderate", req.CanModerate))
	return right, nil
}

// RemoveModerator clears moderation for whichever user holds it. A class
// without a moderator is a valid state; removal is a no-op then.
func (s *RightsService) RemoveModerator(ctx context.Context, classID string) error {
	if classID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	cleared, err := s.repo.ClearModerator(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove moderator")
	}
	if cleared > 0 {
		s.logger.Info("moderator removed", zap.String("class_id", classID))
	}
	return nil
}

// Moderator returns the current moderator right for a class, or nil.
func (s *RightsService) Moderator(ctx context.Context, classID string) (*models.PublicationRight, error) {
	right, err := s.repo.FindModerator(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load moderator")
	}
	return right, nil
}

// EvaluatePublicationPermission decides whether a user may post in a class.
// Precedence, highest first: explicit per-user grant, blanket EVERYONE
// policy, role match against the policy, deny.
func (s *RightsService) EvaluatePublicationPermission(ctx context.Context, userID, classID string) (bool, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	var explicit *models.PublicationRight
	right, err := s.repo.Find(ctx, userID, classID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load publication right")
		}
	} else {
		explicit = right
	}

	if explicit != nil && explicit.CanPublish {
		return true, nil
	}
	if class.PublicationPolicy == models.PublishEveryone {
		return true, nil
	}

	switch class.PublicationPolicy {
	case models.PublishModeratorOnly:
		return explicit != nil && explicit.CanModerate, nil
	case models.PublishProfessorsOnly:
		role, err := s.directory.Resolve(ctx, userID)
		if err != nil {
			return false, err
		}
		return role == models.RoleProfessor, nil
	case models.PublishParentsAndModerator:
		if explicit != nil && explicit.CanModerate {
			return true, nil
		}
		role, err := s.directory.Resolve(ctx, userID)
		if err != nil {
			return false, err
		}
		return role == models.RoleParent, nil
	}
	return false, nil
}
