package services

import (
	"context"
	"time"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// Ports consumed by the tracking engine. The storage layer implements all of
// them; tests substitute in-memory fakes.
type (
	// LedgerReader is the read-only, time-windowed view of the expense ledger.
	LedgerReader interface {
		// ListEntries returns a user's entries with expense_date in [from, to),
		// optionally filtered by category. An empty category means no filter.
		ListEntries(ctx context.Context, userID, category string, from, to time.Time) ([]core.LedgerEntry, error)

		// ListAllEntries returns every entry of a user ordered by expense_date
		// ascending.
		ListAllEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error)

		// ListGeocodedEntries returns the user's entries carrying a full
		// coordinate pair.
		ListGeocodedEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error)
	}

	// EnrollmentStore reads and writes challenge enrollments.
	EnrollmentStore interface {
		// ListActiveEnrollments returns the user's active enrollments whose
		// challenge has the given type, joined with the catalog definition.
		ListActiveEnrollments(ctx context.Context, userID string, challengeType core.ChallengeType) ([]core.EnrolledChallenge, error)

		// UpdateEnrollment overwrites the enrollment's derived fields. The
		// write is a plain overwrite: recomputation is total, so a concurrent
		// identical write is benign.
		UpdateEnrollment(ctx context.Context, update core.EnrollmentUpdate) error
	}

	// UserLister enumerates users holding active enrollments, for the
	// reconciler sweep.
	UserLister interface {
		ListUsersWithActiveEnrollments(ctx context.Context, limit int) ([]string, error)
	}

	// Notifier receives challenge completion events. Dispatch is fire-and-
	// forget and at-least-once; consumers that need exactly-once must
	// de-duplicate on enrollment ID.
	Notifier interface {
		ChallengeCompleted(ctx context.Context, enrollment core.Enrollment, challenge core.Challenge) error
	}

	// EventPublisher emits ledger-change events that trigger a tracking pass
	// for the affected user.
	EventPublisher interface {
		PublishExpenseChanged(ctx context.Context, userID string, expenseID int64, op string) error
	}
)
