package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReconcilerConfig holds configuration for the periodic tracking sweep
type ReconcilerConfig struct {
	// Interval is how often to sweep users with active enrollments (default: 15m)
	Interval time.Duration

	// BatchSize is the max number of users to process per sweep (default: 100)
	BatchSize int
}

// DefaultReconcilerConfig returns sensible defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:  15 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler periodically re-runs the tracking pass for every user holding
// active enrollments, so time-expired challenges resolve to failed even when
// the user never comes back. Each sweep is a fresh full recompute; there is
// no scheduler state carried between runs.
type Reconciler struct {
	users    UserLister
	progress *ProgressService
	config   ReconcilerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(users UserLister, progress *ProgressService, config ReconcilerConfig) *Reconciler {
	return &Reconciler{
		users:    users,
		progress: progress,
		config:   config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Reconciler started",
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize)

	return nil
}

// Stop gracefully stops the reconciler and waits for completion.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the reconciler is currently running
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	r.Sweep(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one tracking pass over every user with active enrollments.
// Failures are contained per user; the sweep itself never fails.
func (r *Reconciler) Sweep(ctx context.Context) {
	userIDs, err := r.users.ListUsersWithActiveEnrollments(ctx, r.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list users for reconciliation", "error", err)
		return
	}

	if len(userIDs) == 0 {
		return
	}

	slog.DebugContext(ctx, "Reconciling challenge progress", "users", len(userIDs))

	for _, userID := range userIDs {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		r.progress.TrackAll(ctx, userID)
	}
}
