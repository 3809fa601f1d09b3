package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type classStore interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	TransitionState(ctx context.Context, id string, to models.ClassState) error
	RecordDecision(ctx context.Context, decision *models.ClassDecision) error
}

// RejectClassRequest carries the rejection taxonomy codes and optional note.
type RejectClassRequest struct {
	Codes []string `json:"codes"`
	Note  *string  `json:"note,omitempty"`
}

// ClassApprovalService governs the class lifecycle:
// PENDING_APPROVAL -> ACTIVE | REJECTED, both terminal.
type ClassApprovalService struct {
	repo        classStore
	reasonCodes map[string]struct{}
	logger      *zap.Logger
}

// NewClassApprovalService constructs the service. reasonCodes is the
// configured rejection taxonomy; rejections must cite at least one.
func NewClassApprovalService(repo classStore, reasonCodes []string, logger *zap.Logger) *ClassApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	codes := make(map[string]struct{}, len(reasonCodes))
	for _, code := range reasonCodes {
		codes[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return &ClassApprovalService{repo: repo, reasonCodes: codes, logger: logger}
}

// ApproveByEstablishment activates a class on behalf of its establishment.
func (s *ClassApprovalService) ApproveByEstablishment(ctx context.Context, classID, establishmentID string) (*models.Class, error) {
	if establishmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "establishment id is required")
	}
	class, err := s.load(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.EstablishmentID == nil || *class.EstablishmentID != establishmentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "class does not belong to this establishment")
	}

	return s.transition(ctx, class, models.ClassStateActive, &models.ClassDecision{
		ClassID:   class.ID,
		State:     models.ClassStateActive,
		DecidedBy: establishmentID,
	})
}

// SelfApprove activates an independent class on behalf of its creator.
// The predicate is evaluated here, not stored: no establishment reference,
// the requester is the creator, and payment succeeded (or the class already
// carries an equivalent active signal).
func (s *ClassApprovalService) SelfApprove(ctx context.Context, classID, requesterID string) (*models.Class, error) {
	class, err := s.load(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSelfDecision(class, requesterID); err != nil {
		return nil, err
	}

	return s.transition(ctx, class, models.ClassStateActive, &models.ClassDecision{
		ClassID:     class.ID,
		State:       models.ClassStateActive,
		DecidedBy:   requesterID,
		SelfDecided: true,
	})
}

// Reject moves a pending class to REJECTED. actorID is either the
// establishment or the creator; self is the audit discriminator for
// creator-initiated rejections, which share the transition.
func (s *ClassApprovalService) Reject(ctx context.Context, classID, actorID string, self bool, req RejectClassRequest) (*models.Class, error) {
	codes, err := s.normalizeCodes(req.Codes)
	if err != nil {
		return nil, err
	}

	class, err := s.load(ctx, classID)
	if err != nil {
		return nil, err
	}
	if self {
		if err := s.checkSelfDecision(class, actorID); err != nil {
			return nil, err
		}
	} else {
		if class.EstablishmentID == nil || *class.EstablishmentID != actorID {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "class does not belong to this establishment")
		}
	}

	return s.transition(ctx, class, models.ClassStateRejected, &models.ClassDecision{
		ClassID:     class.ID,
		State:       models.ClassStateRejected,
		DecidedBy:   actorID,
		SelfDecided: self,
		ReasonCodes: codes,
		Note:        req.Note,
	})
}

func (s *ClassApprovalService) load(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// checkSelfDecision is the self-approval predicate shared by SelfApprove
// and self-initiated Reject.
func (s *ClassApprovalService) checkSelfDecision(class *models.Class, requesterID string) error {
	if class.EstablishmentID != nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "class is managed by an establishment")
	}
	if class.CreatorID != requesterID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "only the class creator may decide")
	}
	if class.PaymentStatus != models.PaymentSuccess && class.State != models.ClassStateActive {
		return appErrors.Clone(appErrors.ErrUnauthorized, "payment has not been confirmed")
	}
	return nil
}

func (s *ClassApprovalService) transition(ctx context.Context, class *models.Class, to models.ClassState, decision *models.ClassDecision) (*models.Class, error) {
	if class.State.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class approval already decided")
	}

	if err := s.repo.TransitionState(ctx, class.ID, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against a concurrent resolution.
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "class approval already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition class state")
	}

	decision.DecidedAt = time.Now().UTC()
	if err := s.repo.RecordDecision(ctx, decision); err != nil {
		s.logger.Error("failed to record class decision",
			zap.String("class_id", class.ID), zap.String("state", string(to)), zap.Error(err))
	}

	class.State = to
	class.UpdatedAt = decision.DecidedAt
	s.logger.Info("class state transition",
		zap.String("class_id", class.ID),
		zap.String("state", string(to)),
		zap.String("decided_by", decision.DecidedBy),
		zap.Bool("self_decided", decision.SelfDecided))
	return class, nil
}

func (s *ClassApprovalService) normalizeCodes(raw []string) ([]string, error) {
	var codes []string
	seen := make(map[string]struct{})
	for _, code := range raw {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := s.reasonCodes[code]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown rejection reason code: "+code)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one rejection reason code is required")
	}
	return codes, nil
}
