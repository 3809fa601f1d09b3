package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type decisionObserver interface {
	ObservePolicyDecision(operation, outcome string)
}

// PolicyService is the facade over the request ledger, the class approval
// state machine and the rights engine. Each method is one short-lived
// transaction against shared state; the composed pieces handle atomicity
// (DB transactions or conditional updates), and the facade adds
// notification dispatch, audit and metrics around the committed outcome.
type PolicyService struct {
	requests      *AccessRequestService
	approvals     *ClassApprovalService
	rights        *RightsService
	notifications *NotificationService
	audit         auditLogger
	metrics       decisionObserver
	logger        *zap.Logger
}

// NewPolicyService constructs the facade.
func NewPolicyService(requests *AccessRequestService, approvals *ClassApprovalService, rights *RightsService, notifications *NotificationService, audit auditLogger, metrics decisionObserver, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		requests:      requests,
		approvals:     approvals,
		rights:        rights,
		notifications: notifications,
		audit:         audit,
		metrics:       metrics,
		logger:        logger,
	}
}

// SubmitAndNotify files a join request and notifies the class moderator.
func (s *PolicyService) SubmitAndNotify(ctx context.Context, req SubmitAccessRequest) (*models.AccessRequest, error) {
	request, err := s.requests.Submit(ctx, req)
	if err != nil {
		s.observe("submit_request", err)
		return nil, err
	}
	s.observe("submit_request", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyRequestSubmitted,
		ClassID: request.ClassID,
		UserID:  request.RequesterID,
	})
	s.writeAudit(ctx, req.RequesterID, models.AuditActionRequestSubmit, "access_request", request.ID, request)
	return request, nil
}

// ApproveRequestAndGrant approves a pending request, creating the grant in
// the same database transaction, then notifies the requester.
func (s *PolicyService) ApproveRequestAndGrant(ctx context.Context, requestID, actorID string) (*models.Grant, error) {
	grant, err := s.requests.Approve(ctx, requestID, actorID)
	if err != nil {
		s.observe("approve_request", err)
		return nil, err
	}
	s.observe("approve_request", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyRequestApproved,
		ClassID: grant.ClassID,
		UserID:  grant.UserID,
		Attributes: map[string]string{
			"role": string(grant.Role),
		},
	})
	s.writeAudit(ctx, actorID, models.AuditActionRequestApprove, "access_request", requestID, grant)
	return grant, nil
}

// RejectRequest rejects a pending request with a mandatory reason.
func (s *PolicyService) RejectRequest(ctx context.Context, requestID, actorID string, req RejectAccessRequest) (*models.AccessRequest, error) {
	request, err := s.requests.Reject(ctx, requestID, actorID, req)
	if err != nil {
		s.observe("reject_request", err)
		return nil, err
	}
	s.observe("reject_request", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyRequestRejected,
		ClassID: request.ClassID,
		UserID:  request.RequesterID,
		Attributes: map[string]string{
			"reason": req.Reason,
		},
	})
	s.writeAudit(ctx, actorID, models.AuditActionRequestReject, "access_request", requestID, request)
	return request, nil
}

// RevokeGrant removes a membership. Idempotent.
func (s *PolicyService) RevokeGrant(ctx context.Context, userID, classID, actorID string) error {
	if err := s.requests.RevokeGrant(ctx, userID, classID); err != nil {
		s.observe("revoke_grant", err)
		return err
	}
	s.observe("revoke_grant", nil)
	s.writeAudit(ctx, actorID, models.AuditActionGrantRevoke, "grant", classID+"/"+userID, nil)
	return nil
}

// ApproveClassByEstablishment activates a class on establishment authority.
func (s *PolicyService) ApproveClassByEstablishment(ctx context.Context, classID, establishmentID string) (*models.Class, error) {
	class, err := s.approvals.ApproveByEstablishment(ctx, classID, establishmentID)
	if err != nil {
		s.observe("approve_class", err)
		return nil, err
	}
	s.observe("approve_class", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyClassApproved,
		ClassID: class.ID,
		UserID:  class.CreatorID,
	})
	s.writeAudit(ctx, establishmentID, models.AuditActionClassApprove, "class", class.ID, class)
	return class, nil
}

// ApproveClassSelf activates an independent class on creator authority.
func (s *PolicyService) ApproveClassSelf(ctx context.Context, classID, requesterID string) (*models.Class, error) {
	class, err := s.approvals.SelfApprove(ctx, classID, requesterID)
	if err != nil {
		s.observe("self_approve_class", err)
		return nil, err
	}
	s.observe("self_approve_class", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyClassApproved,
		ClassID: class.ID,
		UserID:  class.CreatorID,
	})
	s.writeAudit(ctx, requesterID, models.AuditActionClassSelfApprove, "class", class.ID, class)
	return class, nil
}

// RejectClass rejects a pending class with taxonomy codes.
func (s *PolicyService) RejectClass(ctx context.Context, classID, actorID string, self bool, req RejectClassRequest) (*models.Class, error) {
	class, err := s.approvals.Reject(ctx, classID, actorID, self, req)
	if err != nil {
		s.observe("reject_class", err)
		return nil, err
	}
	s.observe("reject_class", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyClassRejected,
		ClassID: class.ID,
		UserID:  class.CreatorID,
	})
	s.writeAudit(ctx, actorID, models.AuditActionClassReject, "class", class.ID, req)
	return class, nil
}

// AssignRights writes an explicit publication right for a class member.
func (s *PolicyService) AssignRights(ctx context.Context, classID, actorID string, req AssignRightsRequest) (*models.PublicationRight, error) {
	right, err := s.rights.AssignRights(ctx, classID, req)
	if err != nil {
		s.observe("assign_rights", err)
		return nil, err
	}
	s.observe("assign_rights", nil)
	s.writeAudit(ctx, actorID, models.AuditActionRightsAssign, "publication_right", classID+"/"+req.UserID, right)
	return right, nil
}

// AssignModeratorWithRights makes the user the class moderator with the
// default publish right. Both facets live in one right row written in one
// store transaction, so there is no partial state to compensate.
func (s *PolicyService) AssignModeratorWithRights(ctx context.Context, classID, userID, actorID string) (*models.PublicationRight, error) {
	right, err := s.rights.AssignRights(ctx, classID, AssignRightsRequest{
		UserID:      userID,
		CanPublish:  true,
		CanModerate: true,
	})
	if err != nil {
		s.observe("assign_moderator", err)
		return nil, err
	}
	s.observe("assign_moderator", nil)
	s.notifications.Dispatch(NotificationEvent{
		Type:    NotifyModeratorAssigned,
		ClassID: classID,
		UserID:  userID,
	})
	s.writeAudit(ctx, actorID, models.AuditActionRightsAssign, "publication_right", classID+"/"+userID, right)
	return right, nil
}

// RemoveModerator clears the class moderator, if any.
func (s *PolicyService) RemoveModerator(ctx context.Context, classID, actorID string) error {
	if err := s.rights.RemoveModerator(ctx, classID); err != nil {
		s.observe("remove_moderator", err)
		return err
	}
	s.observe("remove_moderator", nil)
	s.writeAudit(ctx, actorID, models.AuditActionModeratorRemove, "publication_right", classID, nil)
	return nil
}

// CheckPublicationPermission evaluates the effective posting permission.
func (s *PolicyService) CheckPublicationPermission(ctx context.Context, userID, classID string) (bool, error) {
	return s.rights.EvaluatePublicationPermission(ctx, userID, classID)
}

func (s *PolicyService) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.ObservePolicyDecision(operation, outcome)
}

func (s *PolicyService) writeAudit(ctx context.Context, actorID, action, resource, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	var values []byte
	if payload != nil {
		values, _ = json.Marshal(payload)
	}
	var userID *string
	if actorID != "" {
		userID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}
