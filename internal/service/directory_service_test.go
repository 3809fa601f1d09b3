package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type directoryReaderStub struct {
	records     map[string]*models.DirectoryRecord
	memberships map[string]map[string]bool
	recordErr   error
	memberErr   error
	lookups     int
}

func newDirectoryReaderStub() *directoryReaderStub {
	return &directoryReaderStub{
		records:     make(map[string]*models.DirectoryRecord),
		memberships: make(map[string]map[string]bool),
	}
}

func (d *directoryReaderStub) FindRecord(ctx context.Context, userID string) (*models.DirectoryRecord, error) {
	d.lookups++
	if d.recordErr != nil {
		return nil, d.recordErr
	}
	if record, ok := d.records[userID]; ok {
		copy := *record
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (d *directoryReaderStub) InCollection(ctx context.Context, collection, userID string) (bool, error) {
	if d.memberErr != nil {
		return false, d.memberErr
	}
	return d.memberships[collection][userID], nil
}

type roleCacheStub struct {
	entries map[string]*models.RoleResolution
	sets    int
}

func newRoleCacheStub() *roleCacheStub {
	return &roleCacheStub{entries: make(map[string]*models.RoleResolution)}
}

func (c *roleCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if resolution, ok := dest.(*models.RoleResolution); ok {
		*resolution = *cached
	}
	return nil
}

func (c *roleCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	if resolution, ok := value.(*models.RoleResolution); ok {
		copy := *resolution
		c.entries[key] = &copy
	}
	return nil
}

func strPtr(v string) *string {
	return &v
}

func TestDirectoryServiceExplicitTagWins(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.records["user-1"] = &models.DirectoryRecord{
		ID:            "user-1",
		RoleTag:       strPtr("PARENT"),
		AcademicLevel: strPtr("3eme"),
	}
	// Memberships would say STUDENT, but the tag has priority.
	repo.memberships["students"] = map[string]bool{"user-1": true}

	svc := NewDirectoryService(repo, nil, nil, DirectoryConfig{})
	resolution, err := svc.ResolveDetailed(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleParent, resolution.Role)
	require.Equal(t, models.SignalExplicitTag, resolution.Signal)
}

func TestDirectoryServiceInvalidTagFallsThrough(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.records["user-1"] = &models.DirectoryRecord{ID: "user-1", RoleTag: strPtr("WIZARD")}
	repo.memberships["professors"] = map[string]bool{"user-1": true}

	svc := NewDirectoryService(repo, nil, nil, DirectoryConfig{})
	resolution, err := svc.ResolveDetailed(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleProfessor, resolution.Role)
	require.Equal(t, models.SignalMembership, resolution.Signal)
}

func TestDirectoryServiceHeuristics(t *testing.T) {
	cases := []struct {
		name   string
		record models.DirectoryRecord
		want   models.Role
		signal string
	}{
		{"institution implies professor", models.DirectoryRecord{InstitutionName: strPtr("Lycee Pasteur")}, models.RoleProfessor, models.SignalHeuristic},
		{"registration implies professor", models.DirectoryRecord{RegistrationNo: strPtr("REG-42")}, models.RoleProfessor, models.SignalHeuristic},
		{"academic level implies student", models.DirectoryRecord{AcademicLevel: strPtr("Terminale")}, models.RoleStudent, models.SignalHeuristic},
		{"address alone implies parent", models.DirectoryRecord{HomeAddress: strPtr("12 rue des Lilas")}, models.RoleParent, models.SignalHeuristic},
		{"professor signal beats student signal", models.DirectoryRecord{InstitutionName: strPtr("Lycee"), AcademicLevel: strPtr("2nde")}, models.RoleProfessor, models.SignalHeuristic},
		{"no signals fall back to generic", models.DirectoryRecord{}, models.RoleGeneric, models.SignalFallback},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newDirectoryReaderStub()
			record := tc.record
			record.ID = "user-1"
			repo.records["user-1"] = &record

			svc := NewDirectoryService(repo, nil, nil, DirectoryConfig{})
			resolution, err := svc.ResolveDetailed(context.Background(), "user-1")
			require.NoError(t, err)
			require.Equal(t, tc.want, resolution.Role)
			require.Equal(t, tc.signal, resolution.Signal)
		})
	}
}

func TestDirectoryServiceUnknownUser(t *testing.T) {
	svc := NewDirectoryService(newDirectoryReaderStub(), nil, nil, DirectoryConfig{})
	_, err := svc.ResolveDetailed(context.Background(), "ghost")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDirectoryServiceOutageFailOpen(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.recordErr = errors.New("directory timeout")
	cache := newRoleCacheStub()

	svc := NewDirectoryService(repo, cache, nil, DirectoryConfig{})
	resolution, err := svc.ResolveDetailed(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleGeneric, resolution.Role)
	require.Equal(t, models.SignalFallback, resolution.Signal)
	require.Zero(t, cache.sets, "degraded result must not be cached")
}

func TestDirectoryServiceOutageFailClosed(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.recordErr = errors.New("directory timeout")

	svc := NewDirectoryService(repo, nil, nil, DirectoryConfig{FailClosed: true})
	_, err := svc.ResolveDetailed(context.Background(), "user-1")
	require.ErrorIs(t, err, appErrors.ErrDirectoryUnavailable)
}

func TestDirectoryServiceMembershipFailureSkipsSignal(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.records["user-1"] = &models.DirectoryRecord{ID: "user-1", AcademicLevel: strPtr("1ere")}
	repo.memberErr = errors.New("collection timeout")

	svc := NewDirectoryService(repo, nil, nil, DirectoryConfig{})
	resolution, err := svc.ResolveDetailed(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, resolution.Role)
	require.Equal(t, models.SignalHeuristic, resolution.Signal)
}

func TestDirectoryServiceCaching(t *testing.T) {
	repo := newDirectoryReaderStub()
	repo.records["user-1"] = &models.DirectoryRecord{ID: "user-1", RoleTag: strPtr("STUDENT")}
	cache := newRoleCacheStub()

	svc := NewDirectoryService(repo, cache, nil, DirectoryConfig{RoleCacheTTL: time.Minute})

	role, err := svc.Resolve(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, role)
	require.Equal(t, 1, cache.sets)

	role, err = svc.Resolve(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, role)
	require.Equal(t, 1, repo.lookups, "second resolve must come from the cache")
}

func TestDirectoryServiceRequiresUserID(t *testing.T) {
	svc := NewDirectoryService(newDirectoryReaderStub(), nil, nil, DirectoryConfig{})
	_, err := svc.ResolveDetailed(context.Background(), "")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
