package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/cache"
	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

type fakeChallengeStore struct {
	challenges    map[uuid.UUID]core.Challenge
	enrollments   []core.Enrollment
	listCalls     int
	listUserCalls int
}

func (f *fakeChallengeStore) ListActiveChallenges(_ context.Context) ([]core.Challenge, error) {
	f.listCalls++
	var out []core.Challenge
	for _, c := range f.challenges {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChallengeStore) GetChallenge(_ context.Context, id uuid.UUID) (core.Challenge, error) {
	c, ok := f.challenges[id]
	if !ok {
		return core.Challenge{}, core.ErrNotFound
	}
	return c, nil
}

func (f *fakeChallengeStore) CreateEnrollment(_ context.Context, enrollment core.Enrollment) error {
	f.enrollments = append(f.enrollments, enrollment)
	return nil
}

func (f *fakeChallengeStore) HasActiveEnrollment(_ context.Context, userID string, challengeID uuid.UUID) (bool, error) {
	for _, e := range f.enrollments {
		if e.UserID == userID && e.ChallengeID == challengeID && e.Status == core.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChallengeStore) ListUserChallenges(_ context.Context, userID string) ([]core.EnrolledChallenge, error) {
	f.listUserCalls++
	var out []core.EnrolledChallenge
	for _, e := range f.enrollments {
		if e.UserID == userID {
			out = append(out, core.EnrolledChallenge{Enrollment: e, Challenge: f.challenges[e.ChallengeID]})
		}
	}
	return out, nil
}

func testChallenge(active bool) core.Challenge {
	return core.Challenge{
		ID:           uuid.New(),
		Title:        "No-Spend Week",
		Type:         core.TypeSpending,
		Category:     core.CategoryAll,
		TargetAmount: 100000,
		DurationDays: 7,
		IsActive:     active,
	}
}

func TestJoinCreatesActiveEnrollment(t *testing.T) {
	challenge := testChallenge(true)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	svc := NewChallengeService(store, nil, nil)

	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return joined }

	enrollment, err := svc.Join(context.Background(), testUser, challenge.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enrollment.ID == uuid.Nil {
		t.Error("expected a generated enrollment ID")
	}
	if enrollment.Status != core.StatusActive {
		t.Errorf("status = %v, want active", enrollment.Status)
	}
	if enrollment.CurrentAmount != 0 {
		t.Errorf("current amount = %d, want 0", enrollment.CurrentAmount)
	}
	if !enrollment.StartedAt.Equal(joined) {
		t.Errorf("started_at = %v, want %v", enrollment.StartedAt, joined)
	}
	if len(store.enrollments) != 1 {
		t.Fatalf("expected one persisted enrollment, got %d", len(store.enrollments))
	}
}

func TestJoinRejectsDuplicateActiveEnrollment(t *testing.T) {
	challenge := testChallenge(true)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	svc := NewChallengeService(store, nil, nil)

	if _, err := svc.Join(context.Background(), testUser, challenge.ID); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, err := svc.Join(context.Background(), testUser, challenge.ID); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Errorf("expected ErrAlreadyEnrolled, got %v", err)
	}
}

func TestJoinAllowsReEnrollAfterTerminalAttempt(t *testing.T) {
	challenge := testChallenge(true)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	store.enrollments = append(store.enrollments, core.Enrollment{
		ID:          uuid.New(),
		UserID:      testUser,
		ChallengeID: challenge.ID,
		Status:      core.StatusFailed,
		StartedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	svc := NewChallengeService(store, nil, nil)

	if _, err := svc.Join(context.Background(), testUser, challenge.ID); err != nil {
		t.Errorf("re-enroll after failed attempt: %v", err)
	}
}

func TestJoinRejectsInactiveChallenge(t *testing.T) {
	challenge := testChallenge(false)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	svc := NewChallengeService(store, nil, nil)

	if _, err := svc.Join(context.Background(), testUser, challenge.ID); !errors.Is(err, ErrChallengeInactive) {
		t.Errorf("expected ErrChallengeInactive, got %v", err)
	}
}

func TestJoinRejectsUnknownChallenge(t *testing.T) {
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{}}
	svc := NewChallengeService(store, nil, nil)

	if _, err := svc.Join(context.Background(), testUser, uuid.New()); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestListCatalogUsesCache(t *testing.T) {
	challenge := testChallenge(true)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	catalog := cache.NewLRU[[]core.Challenge](10, time.Minute)
	svc := NewChallengeService(store, catalog, nil)

	for i := 0; i < 3; i++ {
		challenges, err := svc.ListCatalog(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(challenges) != 1 {
			t.Fatalf("catalog size = %d, want 1", len(challenges))
		}
	}

	if store.listCalls != 1 {
		t.Errorf("store queried %d times, want 1 (cache hit expected)", store.listCalls)
	}
}

func TestListUserChallengesSnapshotCache(t *testing.T) {
	challenge := testChallenge(true)
	store := &fakeChallengeStore{challenges: map[uuid.UUID]core.Challenge{challenge.ID: challenge}}
	snapshots := cache.NewLRU[[]core.EnrolledChallenge](10, time.Minute)
	svc := NewChallengeService(store, nil, snapshots)

	for i := 0; i < 3; i++ {
		if _, err := svc.ListUserChallenges(context.Background(), testUser); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.listUserCalls != 1 {
		t.Errorf("store queried %d times, want 1 (snapshot hit expected)", store.listUserCalls)
	}

	// a join invalidates the snapshot
	if _, err := svc.Join(context.Background(), testUser, challenge.ID); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	enrolled, err := svc.ListUserChallenges(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.listUserCalls != 2 {
		t.Errorf("store queried %d times after join, want 2", store.listUserCalls)
	}
	if len(enrolled) != 1 {
		t.Errorf("enrollments = %d, want 1", len(enrolled))
	}
}
