package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

type fakeUserLister struct {
	mu    sync.Mutex
	users []string
	err   error
	calls int
}

func (f *fakeUserLister) ListUsersWithActiveEnrollments(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.users) > limit {
		return f.users[:limit], nil
	}
	return f.users, nil
}

func TestSweepFailsExpiredEnrollments(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ec := enrolled(core.TypeLogging, core.CategoryCount, 10, 7, start)

	ledger := &fakeLedger{}
	enrollments := &fakeEnrollments{enrolled: []core.EnrolledChallenge{ec}}
	users := &fakeUserLister{users: []string{testUser}}

	progress := newTestService(ledger, enrollments, nil, start.AddDate(0, 0, 30))
	r := NewReconciler(users, progress, DefaultReconcilerConfig())

	r.Sweep(context.Background())

	update, ok := enrollments.updateFor(ec.Enrollment.ID)
	if !ok {
		t.Fatal("expected the sweep to write an update")
	}
	if update.Status != core.StatusFailed {
		t.Errorf("status = %v, want failed after window expiry", update.Status)
	}
}

func TestSweepToleratesListFailure(t *testing.T) {
	users := &fakeUserLister{err: errors.New("db down")}
	progress := newTestService(&fakeLedger{}, &fakeEnrollments{}, nil, time.Now())
	r := NewReconciler(users, progress, DefaultReconcilerConfig())

	// must not panic; nothing to assert beyond returning
	r.Sweep(context.Background())
}

func TestReconcilerLifecycle(t *testing.T) {
	users := &fakeUserLister{}
	progress := newTestService(&fakeLedger{}, &fakeEnrollments{}, nil, time.Now())

	config := ReconcilerConfig{Interval: time.Hour, BatchSize: 10}
	r := NewReconciler(users, progress, config)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.IsRunning() {
		t.Error("expected running after Start")
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second Start must fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.IsRunning() {
		t.Error("expected not running after Stop")
	}

	users.mu.Lock()
	calls := users.calls
	users.mu.Unlock()
	if calls < 1 {
		t.Error("expected at least the immediate startup sweep")
	}
}
