package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

var testReasonCodes = []string{"INCOMPLETE_PROFILE", "NOT_ELIGIBLE", "PAYMENT_MISSING", "OTHER"}

type classStoreStub struct {
	classes       map[string]*models.Class
	decisions     []*models.ClassDecision
	transitionErr error
}

func newClassStoreStub(classes ...*models.Class) *classStoreStub {
	stub := &classStoreStub{classes: make(map[string]*models.Class)}
	for _, class := range classes {
		stub.classes[class.ID] = class
	}
	return stub
}

func (s *classStoreStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := s.classes[id]; ok {
		copy := *class
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *classStoreStub) TransitionState(ctx context.Context, id string, to models.ClassState) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	class, ok := s.classes[id]
	if !ok || class.State != models.ClassStatePendingApproval {
		return sql.ErrNoRows
	}
	class.State = to
	return nil
}

func (s *classStoreStub) RecordDecision(ctx context.Context, decision *models.ClassDecision) error {
	s.decisions = append(s.decisions, decision)
	return nil
}

func pendingEstablishmentClass(id, establishmentID string) *models.Class {
	return &models.Class{
		ID:              id,
		Name:            "6eme B",
		EstablishmentID: &establishmentID,
		CreatorID:       "creator-1",
		PaymentStatus:   models.PaymentNone,
		State:           models.ClassStatePendingApproval,
	}
}

func pendingIndependentClass(id string, payment models.PaymentStatus) *models.Class {
	return &models.Class{
		ID:            id,
		Name:          "Atelier Theatre",
		CreatorID:     "creator-1",
		PaymentStatus: payment,
		State:         models.ClassStatePendingApproval,
	}
}

func TestClassApprovalByEstablishment(t *testing.T) {
	store := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	class, err := svc.ApproveByEstablishment(context.Background(), "class-1", "est-1")
	require.NoError(t, err)
	require.Equal(t, models.ClassStateActive, class.State)
	require.Len(t, store.decisions, 1)
	require.False(t, store.decisions[0].SelfDecided)
	require.Equal(t, "est-1", store.decisions[0].DecidedBy)
}

func TestClassApprovalEstablishmentMismatch(t *testing.T) {
	store := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	_, err := svc.ApproveByEstablishment(context.Background(), "class-1", "est-2")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	require.Equal(t, models.ClassStatePendingApproval, store.classes["class-1"].State)
}

func TestClassSelfApprovePredicate(t *testing.T) {
	establishment := "est-1"
	cases := []struct {
		name      string
		class     *models.Class
		requester string
		wantErr   error
	}{
		{
			name:      "paid independent creator approves",
			class:     pendingIndependentClass("class-1", models.PaymentSuccess),
			requester: "creator-1",
		},
		{
			name: "establishment class cannot self approve",
			class: &models.Class{
				ID: "class-1", EstablishmentID: &establishment, CreatorID: "creator-1",
				PaymentStatus: models.PaymentSuccess, State: models.ClassStatePendingApproval,
			},
			requester: "creator-1",
			wantErr:   appErrors.ErrUnauthorized,
		},
		{
			name:      "only the creator may self approve",
			class:     pendingIndependentClass("class-1", models.PaymentSuccess),
			requester: "someone-else",
			wantErr:   appErrors.ErrUnauthorized,
		},
		{
			name:      "pending payment blocks self approval",
			class:     pendingIndependentClass("class-1", models.PaymentPending),
			requester: "creator-1",
			wantErr:   appErrors.ErrUnauthorized,
		},
		{
			name:      "missing payment blocks self approval",
			class:     pendingIndependentClass("class-1", models.PaymentNone),
			requester: "creator-1",
			wantErr:   appErrors.ErrUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newClassStoreStub(tc.class)
			svc := NewClassApprovalService(store, testReasonCodes, nil)

			class, err := svc.SelfApprove(context.Background(), "class-1", tc.requester)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, models.ClassStateActive, class.State)
			require.Len(t, store.decisions, 1)
			require.True(t, store.decisions[0].SelfDecided)
		})
	}
}

func TestClassApprovalTerminalStateRejected(t *testing.T) {
	active := pendingEstablishmentClass("class-1", "est-1")
	active.State = models.ClassStateActive
	store := newClassStoreStub(active)
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	_, err := svc.ApproveByEstablishment(context.Background(), "class-1", "est-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestClassApprovalLosesRace(t *testing.T) {
	store := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	store.transitionErr = sql.ErrNoRows
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	_, err := svc.ApproveByEstablishment(context.Background(), "class-1", "est-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
	require.Empty(t, store.decisions)
}

func TestClassRejectRequiresKnownCodes(t *testing.T) {
	store := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	_, err := svc.Reject(context.Background(), "class-1", "est-1", false, RejectClassRequest{Codes: []string{"MADE_UP"}})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Reject(context.Background(), "class-1", "est-1", false, RejectClassRequest{})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestClassRejectNormalizesCodes(t *testing.T) {
	store := newClassStoreStub(pendingEstablishmentClass("class-1", "est-1"))
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	class, err := svc.Reject(context.Background(), "class-1", "est-1", false, RejectClassRequest{
		Codes: []string{" not_eligible ", "NOT_ELIGIBLE", "other"},
	})
	require.NoError(t, err)
	require.Equal(t, models.ClassStateRejected, class.State)
	require.Len(t, store.decisions, 1)
	require.Equal(t, []string{"NOT_ELIGIBLE", "OTHER"}, store.decisions[0].ReasonCodes)
}

func TestClassSelfRejectUsesSamePredicate(t *testing.T) {
	store := newClassStoreStub(pendingIndependentClass("class-1", models.PaymentSuccess))
	svc := NewClassApprovalService(store, testReasonCodes, nil)

	class, err := svc.Reject(context.Background(), "class-1", "creator-1", true, RejectClassRequest{
		Codes: []string{"OTHER"},
	})
	require.NoError(t, err)
	require.Equal(t, models.ClassStateRejected, class.State)
	require.True(t, store.decisions[0].SelfDecided)

	// A non-creator cannot self-reject someone else's class.
	store = newClassStoreStub(pendingIndependentClass("class-2", models.PaymentSuccess))
	svc = NewClassApprovalService(store, testReasonCodes, nil)
	_, err = svc.Reject(context.Background(), "class-2", "intruder", true, RejectClassRequest{Codes: []string{"OTHER"}})
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestClassApprovalUnknownClass(t *testing.T) {
	svc := NewClassApprovalService(newClassStoreStub(), testReasonCodes, nil)
	_, err := svc.ApproveByEstablishment(context.Background(), "missing", "est-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
