package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
	"github.com/classgate/classgate-api/pkg/jobs"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type metricsStub struct {
	outcomes map[string]string
}

func newMetricsStub() *metricsStub {
	return &metricsStub{outcomes: make(map[string]string)}
}

func (m *metricsStub) ObservePolicyDecision(operation, outcome string) {
	m.outcomes[operation] = outcome
}

func newTestNotifications(t *testing.T) (*NotificationService, chan NotificationEvent) {
	events := make(chan NotificationEvent, 8)
	notifier := NotifierFunc(func(ctx context.Context, event NotificationEvent) error {
		events <- event
		return nil
	})
	svc := NewNotificationService(notifier, jobs.QueueConfig{Workers: 1}, true, nil)
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc, events
}

func awaitEvent(t *testing.T, events chan NotificationEvent) NotificationEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return NotificationEvent{}
	}
}

func newPolicyFixture(t *testing.T) (*PolicyService, *classStoreStub, *auditStub, *metricsStub, chan NotificationEvent) {
	classStore := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	requestStore := newAccessRequestStoreStub()
	rightsStore := newRightsStoreStub()

	requests := NewAccessRequestService(nil, requestStore, &grantStoreStub{}, classStore, roleResolverStub{role: models.RoleGeneric}, nil, nil)
	approvals := NewClassApprovalService(classStore, testReasonCodes, nil)
	rights := NewRightsService(rightsStore, classStore, roleResolverStub{role: models.RoleGeneric}, nil, nil)
	notifications, events := newTestNotifications(t)
	audit := &auditStub{}
	metrics := newMetricsStub()

	policy := NewPolicyService(requests, approvals, rights, notifications, audit, metrics, nil)
	return policy, classStore, audit, metrics, events
}

func TestPolicyServiceSubmitAndNotify(t *testing.T) {
	policy, _, audit, metrics, events := newPolicyFixture(t)

	request, err := policy.SubmitAndNotify(context.Background(), SubmitAccessRequest{RequesterID: "user-1", ClassID: "class-1"})
	require.NoError(t, err)
	require.Equal(t, models.AccessRequestPending, request.Status)

	event := awaitEvent(t, events)
	require.Equal(t, NotifyRequestSubmitted, event.Type)
	require.Equal(t, "class-1", event.ClassID)
	require.Equal(t, "user-1", event.UserID)

	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionRequestSubmit, audit.logs[0].Action)
	require.Equal(t, "success", metrics.outcomes["submit_request"])
}

func TestPolicyServiceSubmitFailureObserved(t *testing.T) {
	policy, _, audit, metrics, _ := newPolicyFixture(t)

	_, err := policy.SubmitAndNotify(context.Background(), SubmitAccessRequest{RequesterID: "user-1", ClassID: "missing"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	require.Empty(t, audit.logs)
	require.Equal(t, "failure", metrics.outcomes["submit_request"])
}

func TestPolicyServiceApproveClass(t *testing.T) {
	policy, classStore, audit, metrics, events := newPolicyFixture(t)

	class, err := policy.ApproveClassByEstablishment(context.Background(), "class-1", "est-1")
	require.NoError(t, err)
	require.Equal(t, models.ClassStateActive, class.State)
	require.Equal(t, models.ClassStateActive, classStore.classes["class-1"].State)

	event := awaitEvent(t, events)
	require.Equal(t, NotifyClassApproved, event.Type)
	require.Equal(t, "creator-1", event.UserID)

	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionClassApprove, audit.logs[0].Action)
	require.Equal(t, "success", metrics.outcomes["approve_class"])
}

func TestPolicyServiceRejectClassFailureSkipsNotification(t *testing.T) {
	policy, _, _, metrics, events := newPolicyFixture(t)

	_, err := policy.RejectClass(context.Background(), "class-1", "est-1", false, RejectClassRequest{Codes: []string{"UNKNOWN_CODE"}})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Equal(t, "failure", metrics.outcomes["reject_class"])

	select {
	case event := <-events:
		t.Fatalf("unexpected notification: %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPolicyServiceAssignModeratorWithRights(t *testing.T) {
	policy, classStore, audit, metrics, events := newPolicyFixture(t)
	classStore.classes["class-1"].State = models.ClassStateActive

	right, err := policy.AssignModeratorWithRights(context.Background(), "class-1", "user-9", "admin-1")
	require.NoError(t, err)
	require.True(t, right.CanPublish)
	require.True(t, right.CanModerate)

	event := awaitEvent(t, events)
	require.Equal(t, NotifyModeratorAssigned, event.Type)
	require.Equal(t, "user-9", event.UserID)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "success", metrics.outcomes["assign_moderator"])
}

func TestPolicyServiceRevokeGrantAudited(t *testing.T) {
	policy, _, audit, metrics, _ := newPolicyFixture(t)

	require.NoError(t, policy.RevokeGrant(context.Background(), "user-1", "class-1", "admin-1"))
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionGrantRevoke, audit.logs[0].Action)
	require.Equal(t, "success", metrics.outcomes["revoke_grant"])
}
