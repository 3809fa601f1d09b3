package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
)

type directoryReader interface {
	FindRecord(ctx context.Context, userID string) (*models.DirectoryRecord, error)
	InCollection(ctx context.Context, collection, userID string) (bool, error)
}

type roleCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// roleSignal is one typed categorisation predicate. Signals are evaluated
// in a fixed priority order; the first match wins.
type roleSignal struct {
	Name    string
	Resolve func(ctx context.Context, record *models.DirectoryRecord) (models.Role, bool, error)
}

// DirectoryConfig tunes role resolution behaviour.
type DirectoryConfig struct {
	// FailClosed surfaces lookup failures instead of degrading the
	// failing signal to "no match".
	FailClosed   bool
	RoleCacheTTL time.Duration
}

// DirectoryService resolves a user id to a participant role by evaluating
// an ordered list of signals against the external directory.
type DirectoryService struct {
	repo    directoryReader
	cache   roleCache
	logger  *zap.Logger
	config  DirectoryConfig
	signals []roleSignal
}

// NewDirectoryService constructs the service with the standard signal order:
// explicit tag, reference-collection membership, structural heuristics,
// GENERIC fallback.
func NewDirectoryService(repo directoryReader, cache roleCache, logger *zap.Logger, config DirectoryConfig) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RoleCacheTTL <= 0 {
		config.RoleCacheTTL = 10 * time.Minute
	}
	s := &DirectoryService{repo: repo, cache: cache, logger: logger, config: config}
	s.signals = []roleSignal{
		{Name: models.SignalExplicitTag, Resolve: s.resolveExplicitTag},
		{Name: models.SignalMembership, Resolve: s.resolveMembership},
		{Name: models.SignalHeuristic, Resolve: s.resolveHeuristics},
	}
	return s
}

// Resolve returns the role for a user. Roles may change over time, so
// callers that gate decisions on the role must resolve at decision time,
// not at submission time.
func (s *DirectoryService) Resolve(ctx context.Context, userID string) (models.Role, error) {
	resolution, err := s.ResolveDetailed(ctx, userID)
	if err != nil {
		return "", err
	}
	return resolution.Role, nil
}

// ResolveDetailed returns the role together with the signal that produced it.
func (s *DirectoryService) ResolveDetailed(ctx context.Context, userID string) (*models.RoleResolution, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	cacheKey := roleCacheKey(userID)
	if s.cache != nil {
		var cached models.RoleResolution
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached.Role.Valid() {
			return &cached, nil
		}
	}

	record, err := s.repo.FindRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found in directory")
		}
		if s.config.FailClosed {
			return nil, appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status, "directory record lookup failed")
		}
		// Degraded result from an outage is not cached.
		s.logger.Warn("directory record lookup failed, falling back to GENERIC",
			zap.String("user_id", userID), zap.Error(err))
		return &models.RoleResolution{UserID: userID, Role: models.RoleGeneric, Signal: models.SignalFallback}, nil
	}

	for _, signal := range s.signals {
		role, matched, err := signal.Resolve(ctx, record)
		if err != nil {
			if s.config.FailClosed {
				return nil, appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status,
					fmt.Sprintf("directory signal %s failed", signal.Name))
			}
			// Fail-open: a failing collection query counts as "not
			// found in this collection" and evaluation continues.
			s.logger.Warn("directory signal failed, skipping",
				zap.String("user_id", userID), zap.String("signal", signal.Name), zap.Error(err))
			continue
		}
		if matched {
			return s.finish(ctx, cacheKey, &models.RoleResolution{UserID: userID, Role: role, Signal: signal.Name}), nil
		}
	}

	return s.finish(ctx, cacheKey, &models.RoleResolution{UserID: userID, Role: models.RoleGeneric, Signal: models.SignalFallback}), nil
}

func (s *DirectoryService) finish(ctx context.Context, cacheKey string, resolution *models.RoleResolution) *models.RoleResolution {
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, resolution, s.config.RoleCacheTTL); err != nil {
			s.logger.Warn("failed to cache role resolution", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return resolution
}

func (s *DirectoryService) resolveExplicitTag(_ context.Context, record *models.DirectoryRecord) (models.Role, bool, error) {
	if record.RoleTag == nil {
		return "", false, nil
	}
	role := models.Role(*record.RoleTag)
	if !role.Valid() {
		return "", false, nil
	}
	return role, true, nil
}

// collectionOrder fixes the lookup order of the reference collections.
var collectionOrder = []struct {
	name string
	role models.Role
}{
	{"professors", models.RoleProfessor},
	{"students", models.RoleStudent},
	{"parents", models.RoleParent},
}

func (s *DirectoryService) resolveMembership(ctx context.Context, record *models.DirectoryRecord) (models.Role, bool, error) {
	for _, collection := range collectionOrder {
		found, err := s.repo.InCollection(ctx, collection.name, record.ID)
		if err != nil {
			if s.config.FailClosed {
				return "", false, err
			}
			s.logger.Warn("directory collection query failed, treating as not found",
				zap.String("collection", collection.name), zap.String("user_id", record.ID), zap.Error(err))
			continue
		}
		if found {
			return collection.role, true, nil
		}
	}
	return "", false, nil
}

func (s *DirectoryService) resolveHeuristics(_ context.Context, record *models.DirectoryRecord) (models.Role, bool, error) {
	hasProfessorSignal := notBlank(record.InstitutionName) || notBlank(record.RegistrationNo)
	hasStudentSignal := notBlank(record.AcademicLevel)

	switch {
	case hasProfessorSignal:
		return models.RoleProfessor, true, nil
	case hasStudentSignal:
		return models.RoleStudent, true, nil
	case notBlank(record.HomeAddress):
		return models.RoleParent, true, nil
	}
	return "", false, nil
}

func notBlank(v *string) bool {
	return v != nil && *v != ""
}

func roleCacheKey(userID string) string {
	return "directory:role:" + userID
}
