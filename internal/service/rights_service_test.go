package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type rightsStoreStub struct {
	rights  map[string]*models.PublicationRight
	cleared int64
}

func newRightsStoreStub() *rightsStoreStub {
	return &rightsStoreStub{rights: make(map[string]*models.PublicationRight)}
}

func rightKey(userID, classID string) string {
	return userID + "/" + classID
}

func (s *rightsStoreStub) Find(ctx context.Context, userID, classID string) (*models.PublicationRight, error) {
	if right, ok := s.rights[rightKey(userID, classID)]; ok {
		copy := *right
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *rightsStoreStub) FindModerator(ctx context.Context, classID string) (*models.PublicationRight, error) {
	for _, right := range s.rights {
		if right.ClassID == classID && right.CanModerate {
			copy := *right
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *rightsStoreStub) Upsert(ctx context.Context, right *models.PublicationRight) error {
	// The real repository stamps UpdatedAt on every write; mirror that here.
	right.UpdatedAt = time.Now().UTC()
	if right.CanModerate {
		for _, existing := range s.rights {
			if existing.ClassID == right.ClassID && existing.UserID != right.UserID {
				existing.CanModerate = false
			}
		}
	}
	copy := *right
	s.rights[rightKey(right.UserID, right.ClassID)] = &copy
	return nil
}

func (s *rightsStoreStub) ClearModerator(ctx context.Context, classID string) (int64, error) {
	var cleared int64
	for _, right := range s.rights {
		if right.ClassID == classID && right.CanModerate {
			right.CanModerate = false
			cleared++
		}
	}
	s.cleared += cleared
	return cleared, nil
}

func classWithPolicy(id string, policy models.PublicationPolicy) *models.Class {
	return &models.Class{ID: id, Name: "CE1", State: models.ClassStateActive, PublicationPolicy: policy}
}

func TestRightsServiceAssignRequiresActiveClass(t *testing.T) {
	pending := classWithPolicy("class-1", models.PublishEveryone)
	pending.State = models.ClassStatePendingApproval
	svc := NewRightsService(newRightsStoreStub(), newClassReaderStub(pending), roleResolverStub{}, nil, nil)

	_, err := svc.AssignRights(context.Background(), "class-1", AssignRightsRequest{UserID: "user-1", CanPublish: true})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestRightsServiceAssign(t *testing.T) {
	store := newRightsStoreStub()
	svc := NewRightsService(store, newClassReaderStub(classWithPolicy("class-1", models.PublishModeratorOnly)), roleResolverStub{}, nil, nil)

	right, err := svc.AssignRights(context.Background(), "class-1", AssignRightsRequest{UserID: "user-1", CanPublish: true, CanModerate: true})
	require.NoError(t, err)
	require.True(t, right.CanPublish)
	require.True(t, right.CanModerate)
	require.False(t, right.UpdatedAt.IsZero())
}

func TestRightsServiceModeratorUniqueness(t *testing.T) {
	store := newRightsStoreStub()
	classes := newClassReaderStub(classWithPolicy("class-1", models.PublishModeratorOnly))
	svc := NewRightsService(store, classes, roleResolverStub{}, nil, nil)

	_, err := svc.AssignRights(context.Background(), "class-1", AssignRightsRequest{UserID: "user-1", CanModerate: true})
	require.NoError(t, err)
	_, err = svc.AssignRights(context.Background(), "class-1", AssignRightsRequest{UserID: "user-2", CanModerate: true})
	require.NoError(t, err)

	moderator, err := svc.Moderator(context.Background(), "class-1")
	require.NoError(t, err)
	require.NotNil(t, moderator)
	require.Equal(t, "user-2", moderator.UserID)
	require.False(t, store.rights[rightKey("user-1", "class-1")].CanModerate)
}

func TestRightsServiceRemoveModeratorNoOp(t *testing.T) {
	store := newRightsStoreStub()
	svc := NewRightsService(store, newClassReaderStub(classWithPolicy("class-1", models.PublishEveryone)), roleResolverStub{}, nil, nil)

	require.NoError(t, svc.RemoveModerator(context.Background(), "class-1"))
	require.Zero(t, store.cleared)

	moderator, err := svc.Moderator(context.Background(), "class-1")
	require.NoError(t, err)
	require.Nil(t, moderator)
}

func TestRightsServicePublicationPermission(t *testing.T) {
	cases := []struct {
		name     string
		policy   models.PublicationPolicy
		explicit *models.PublicationRight
		role     models.Role
		want     bool
	}{
		{
			name:     "explicit publish grant wins over restrictive policy",
			policy:   models.PublishModeratorOnly,
			explicit: &models.PublicationRight{UserID: "user-1", ClassID: "class-1", CanPublish: true},
			role:     models.RoleGeneric,
			want:     true,
		},
		{
			name:   "everyone policy allows without explicit right",
			policy: models.PublishEveryone,
			role:   models.RoleGeneric,
			want:   true,
		},
		{
			name:     "moderator only allows the moderator",
			policy:   models.PublishModeratorOnly,
			explicit: &models.PublicationRight{UserID: "user-1", ClassID: "class-1", CanModerate: true},
			role:     models.RoleGeneric,
			want:     true,
		},
		{
			name:   "moderator only denies everyone else",
			policy: models.PublishModeratorOnly,
			role:   models.RoleProfessor,
			want:   false,
		},
		{
			name:   "professors only matches the directory role",
			policy: models.PublishProfessorsOnly,
			role:   models.RoleProfessor,
			want:   true,
		},
		{
			name:   "professors only denies students",
			policy: models.PublishProfessorsOnly,
			role:   models.RoleStudent,
			want:   false,
		},
		{
			name:   "parents and moderator allows parents",
			policy: models.PublishParentsAndModerator,
			role:   models.RoleParent,
			want:   true,
		},
		{
			name:     "parents and moderator allows the moderator",
			policy:   models.PublishParentsAndModerator,
			explicit: &models.PublicationRight{UserID: "user-1", ClassID: "class-1", CanModerate: true},
			role:     models.RoleStudent,
			want:     true,
		},
		{
			name:   "parents and moderator denies students",
			policy: models.PublishParentsAndModerator,
			role:   models.RoleStudent,
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newRightsStoreStub()
			if tc.explicit != nil {
				store.rights[rightKey(tc.explicit.UserID, tc.explicit.ClassID)] = tc.explicit
			}
			classes := newClassReaderStub(classWithPolicy("class-1", tc.policy))
			svc := NewRightsService(store, classes, roleResolverStub{role: tc.role}, nil, nil)

			allowed, err := svc.EvaluatePublicationPermission(context.Background(), "user-1", "class-1")
			require.NoError(t, err)
			require.Equal(t, tc.want, allowed)
		})
	}
}

func TestRightsServicePermissionUnknownClass(t *testing.T) {
	svc := NewRightsService(newRightsStoreStub(), newClassReaderStub(), roleResolverStub{}, nil, nil)
	_, err := svc.EvaluatePublicationPermission(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
