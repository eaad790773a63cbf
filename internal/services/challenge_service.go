package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/cache"
	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeInactive = errors.New("challenge is not active")
	ErrAlreadyEnrolled   = errors.New("user already has an active enrollment for this challenge")
)

// ChallengeStore reads the challenge catalog and manages enrollments.
type ChallengeStore interface {
	ListActiveChallenges(ctx context.Context) ([]core.Challenge, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (core.Challenge, error)
	CreateEnrollment(ctx context.Context, enrollment core.Enrollment) error
	HasActiveEnrollment(ctx context.Context, userID string, challengeID uuid.UUID) (bool, error)
	ListUserChallenges(ctx context.Context, userID string) ([]core.EnrolledChallenge, error)
}

const catalogCacheKey = "active_challenges"

// ChallengeService manages the challenge catalog and user enrollments. The
// catalog is immutable at runtime, so the active list is served through a
// small TTL cache; per-user enrollment snapshots are cached the same way and
// invalidated after joins and tracking passes. Either cache may be nil.
type ChallengeService struct {
	store     ChallengeStore
	catalog   cache.Cache[[]core.Challenge]
	snapshots cache.Cache[[]core.EnrolledChallenge]

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewChallengeService(store ChallengeStore, catalog cache.Cache[[]core.Challenge], snapshots cache.Cache[[]core.EnrolledChallenge]) *ChallengeService {
	return &ChallengeService{
		store:     store,
		catalog:   catalog,
		snapshots: snapshots,
		now:       time.Now,
	}
}

// ListCatalog returns the active challenge catalog, cache-first.
func (s *ChallengeService) ListCatalog(ctx context.Context) ([]core.Challenge, error) {
	if s.catalog != nil {
		if challenges, ok := s.catalog.Get(catalogCacheKey); ok {
			return challenges, nil
		}
	}

	challenges, err := s.store.ListActiveChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}

	if s.catalog != nil {
		s.catalog.Set(catalogCacheKey, challenges)
	}

	return challenges, nil
}

// Join enrolls a user into a challenge. The challenge must exist and be
// active, and the user must not already hold an active enrollment for it.
// Progress starts at zero and is first computed by the next tracking pass.
func (s *ChallengeService) Join(ctx context.Context, userID string, challengeID uuid.UUID) (core.Enrollment, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Enrollment{}, ErrChallengeNotFound
		}
		return core.Enrollment{}, fmt.Errorf("get challenge: %w", err)
	}
	if !challenge.IsActive {
		return core.Enrollment{}, ErrChallengeInactive
	}

	exists, err := s.store.HasActiveEnrollment(ctx, userID, challengeID)
	if err != nil {
		return core.Enrollment{}, fmt.Errorf("check existing enrollment: %w", err)
	}
	if exists {
		return core.Enrollment{}, ErrAlreadyEnrolled
	}

	enrollment := core.Enrollment{
		ID:            uuid.New(),
		UserID:        userID,
		ChallengeID:   challengeID,
		CurrentAmount: 0,
		Status:        core.StatusActive,
		StartedAt:     s.now(),
	}

	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		return core.Enrollment{}, fmt.Errorf("create enrollment: %w", err)
	}

	s.InvalidateUserChallenges(userID)

	return enrollment, nil
}

// ListUserChallenges returns all of the user's enrollments joined with their
// catalog definitions, including terminal ones.
func (s *ChallengeService) ListUserChallenges(ctx context.Context, userID string) ([]core.EnrolledChallenge, error) {
	key := snapshotKey(userID)
	if s.snapshots != nil {
		if enrolled, ok := s.snapshots.Get(key); ok {
			return enrolled, nil
		}
	}

	enrolled, err := s.store.ListUserChallenges(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.snapshots != nil {
		s.snapshots.Set(key, enrolled)
	}

	return enrolled, nil
}

// InvalidateUserChallenges drops the user's cached enrollment snapshot.
// Called after any write that changes derived progress, such as a join or a
// tracking pass.
func (s *ChallengeService) InvalidateUserChallenges(userID string) {
	if s.snapshots != nil {
		s.snapshots.Delete(snapshotKey(userID))
	}
}

func snapshotKey(userID string) string {
	return "enrollments:" + userID
}
