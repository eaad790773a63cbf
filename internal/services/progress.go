package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// ProgressService recomputes challenge progress for a user's active
// enrollments. Every pass is a full recompute of derived state from the
// windowed ledger, so repeated and concurrent invocations are idempotent;
// no locks are taken on enrollments.
type ProgressService struct {
	ledger      LedgerReader
	enrollments EnrollmentStore
	notifier    Notifier

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewProgressService creates the tracking engine. The notifier may be nil,
// in which case completions are recomputed but not announced.
func NewProgressService(ledger LedgerReader, enrollments EnrollmentStore, notifier Notifier) *ProgressService {
	return &ProgressService{
		ledger:      ledger,
		enrollments: enrollments,
		notifier:    notifier,
		now:         time.Now,
	}
}

// TrackAll recomputes progress for all of the user's active enrollments.
// The three trackers run concurrently over disjoint enrollment sets
// (partitioned by challenge type). Each tracker contains and logs its own
// errors: TrackAll never fails, and callers need no error handling around
// this best-effort reconciliation pass.
func (s *ProgressService) TrackAll(ctx context.Context, userID string) {
	var (
		mu        sync.Mutex
		completed []core.EnrolledChallenge
	)

	run := func(name string, track func(context.Context, string) ([]core.EnrolledChallenge, error)) func() error {
		return func() error {
			done, err := track(ctx, userID)
			if err != nil {
				slog.ErrorContext(ctx, "Challenge tracking pass failed",
					"tracker", name, "user_id", userID, "error", err)
				return nil // one tracker's failure must not stop the others
			}
			if len(done) > 0 {
				mu.Lock()
				completed = append(completed, done...)
				mu.Unlock()
			}
			return nil
		}
	}

	g := new(errgroup.Group)
	g.Go(run("spending", s.trackSpending))
	g.Go(run("logging", s.trackLogging))
	g.Go(run("exploration", s.trackExploration))
	_ = g.Wait()

	s.dispatchCompletions(ctx, completed)
}

// trackSpending evaluates budget-ceiling challenges: the windowed,
// category-filtered sum of entry amounts measured against the target.
func (s *ProgressService) trackSpending(ctx context.Context, userID string) ([]core.EnrolledChallenge, error) {
	enrollments, err := s.enrollments.ListActiveEnrollments(ctx, userID, core.TypeSpending)
	if err != nil {
		return nil, fmt.Errorf("list spending enrollments: %w", err)
	}

	var completed []core.EnrolledChallenge
	for _, ec := range enrollments {
		w := ec.Window()
		category := ec.Challenge.Category
		if category == core.CategoryAll {
			category = ""
		}

		entries, err := s.ledger.ListEntries(ctx, userID, category, w.Start, w.End)
		if err != nil {
			// fail this enrollment's update only, not the batch
			slog.ErrorContext(ctx, "Windowed ledger query failed",
				"user_id", userID, "enrollment_id", ec.Enrollment.ID, "error", err)
			continue
		}

		if done, ok := s.apply(ctx, ec, entries); ok {
			completed = append(completed, done)
		}
	}

	return completed, nil
}

// trackLogging evaluates engagement challenges (streaks and entry counts).
// The full ledger is fetched once and filtered per enrollment window.
func (s *ProgressService) trackLogging(ctx context.Context, userID string) ([]core.EnrolledChallenge, error) {
	enrollments, err := s.enrollments.ListActiveEnrollments(ctx, userID, core.TypeLogging)
	if err != nil {
		return nil, fmt.Errorf("list logging enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return nil, nil
	}

	entries, err := s.ledger.ListAllEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}

	var completed []core.EnrolledChallenge
	for _, ec := range enrollments {
		if done, ok := s.apply(ctx, ec, filterWindow(entries, ec.Window())); ok {
			completed = append(completed, done)
		}
	}

	return completed, nil
}

// trackExploration evaluates discovery challenges over geocoded entries
// (full coordinate pair present).
func (s *ProgressService) trackExploration(ctx context.Context, userID string) ([]core.EnrolledChallenge, error) {
	enrollments, err := s.enrollments.ListActiveEnrollments(ctx, userID, core.TypeExploration)
	if err != nil {
		return nil, fmt.Errorf("list exploration enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return nil, nil
	}

	entries, err := s.ledger.ListGeocodedEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list geocoded entries: %w", err)
	}

	var completed []core.EnrolledChallenge
	for _, ec := range enrollments {
		if done, ok := s.apply(ctx, ec, filterWindow(entries, ec.Window())); ok {
			completed = append(completed, done)
		}
	}

	return completed, nil
}

// apply evaluates one enrollment against its window-filtered entries and
// overwrites the stored tuple. It returns the refreshed enrollment and
// whether it completed during this pass.
func (s *ProgressService) apply(ctx context.Context, ec core.EnrolledChallenge, entries []core.LedgerEntry) (core.EnrolledChallenge, bool) {
	goal := Goal{Type: ec.Challenge.Type, Category: ec.Challenge.Category}
	ev, err := EvaluatorFor(goal)
	if err != nil {
		// data anomaly: leave the enrollment untouched for this run
		slog.WarnContext(ctx, "Skipping enrollment with unknown goal",
			"enrollment_id", ec.Enrollment.ID, "goal", goal.String())
		return ec, false
	}

	now := s.now()
	current, progress, completed := ev.Evaluate(entries, ec.Challenge.TargetAmount)
	status := resolveStatus(completed, now, ec.Window())

	update := core.EnrollmentUpdate{
		ID:            ec.Enrollment.ID,
		CurrentAmount: current,
		Status:        status,
		ProgressData:  progress,
	}
	if status == core.StatusCompleted {
		completedAt := now
		update.CompletedAt = &completedAt
	}

	if err := s.enrollments.UpdateEnrollment(ctx, update); err != nil {
		// logged and skipped; the next pass retries from scratch
		slog.ErrorContext(ctx, "Enrollment update failed",
			"enrollment_id", ec.Enrollment.ID, "error", err)
		return ec, false
	}

	slog.DebugContext(ctx, "Enrollment progress recomputed",
		"enrollment_id", ec.Enrollment.ID,
		"goal", goal.String(),
		"current_amount", current,
		"target_amount", ec.Challenge.TargetAmount,
		"status", status)

	ec.Enrollment.CurrentAmount = current
	ec.Enrollment.Status = status
	ec.Enrollment.CompletedAt = update.CompletedAt
	if progress != nil {
		ec.Enrollment.ProgressData = progress
	}

	return ec, status == core.StatusCompleted
}

// dispatchCompletions fires the completion hook for enrollments that
// transitioned to completed during this pass. Delivery is fire-and-forget
// and at-least-once: two concurrent passes may both observe the same
// transition, and consumers de-duplicate if they need to.
func (s *ProgressService) dispatchCompletions(ctx context.Context, completed []core.EnrolledChallenge) {
	if s.notifier == nil {
		return
	}
	for _, ec := range completed {
		if err := s.notifier.ChallengeCompleted(ctx, ec.Enrollment, ec.Challenge); err != nil {
			slog.WarnContext(ctx, "Challenge completion notification failed",
				"enrollment_id", ec.Enrollment.ID,
				"challenge_id", ec.Challenge.ID,
				"error", err)
		}
	}
}

func filterWindow(entries []core.LedgerEntry, w core.Window) []core.LedgerEntry {
	var filtered []core.LedgerEntry
	for _, e := range entries {
		if w.Contains(e.ExpenseDate) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
