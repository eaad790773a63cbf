package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository backs the ledger, the challenge catalog and enrollments.
// It implements every storage port the service layer consumes.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateEntry implements services.LedgerStore
func (r *SQLiteRepository) CreateEntry(ctx context.Context, entry core.LedgerEntry) (int64, error) {
	expense, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		UserID:       entry.UserID,
		Description:  entry.Description,
		AmountCents:  entry.Amount.Cents,
		Category:     entry.Category,
		ExpenseDate:  entry.ExpenseDate.UTC(),
		LocationName: entry.LocationName,
		Latitude:     nullFloat(entry.Latitude),
		Longitude:    nullFloat(entry.Longitude),
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", expense.ID,
		"user_id", expense.UserID,
		"amount_cents", expense.AmountCents,
		"category", expense.Category)

	return expense.ID, nil
}

// GetEntry implements services.LedgerStore
func (r *SQLiteRepository) GetEntry(ctx context.Context, userID string, id int64) (core.LedgerEntry, error) {
	expense, err := r.queries.GetExpense(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("get expense: %w", err)
	}
	return expense.toCore(), nil
}

// UpdateEntry implements services.LedgerStore
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, entry core.LedgerEntry) error {
	affected, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Description:  entry.Description,
		AmountCents:  entry.Amount.Cents,
		Category:     entry.Category,
		ExpenseDate:  entry.ExpenseDate.UTC(),
		LocationName: entry.LocationName,
		Latitude:     nullFloat(entry.Latitude),
		Longitude:    nullFloat(entry.Longitude),
	})
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense %d: %w", entry.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteEntry implements services.LedgerStore
func (r *SQLiteRepository) DeleteEntry(ctx context.Context, userID string, id int64) error {
	affected, err := r.queries.DeleteExpense(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListEntries implements services.LedgerReader
func (r *SQLiteRepository) ListEntries(ctx context.Context, userID, category string, from, to time.Time) ([]core.LedgerEntry, error) {
	var (
		expenses []Expense
		err      error
	)
	if category == "" {
		expenses, err = r.queries.ListExpensesInWindow(ctx, userID, from.UTC(), to.UTC())
	} else {
		expenses, err = r.queries.ListExpensesInWindowByCategory(ctx, userID, category, from.UTC(), to.UTC())
	}
	if err != nil {
		return nil, fmt.Errorf("list expenses in window: %w", err)
	}
	return toEntries(expenses), nil
}

// ListAllEntries implements services.LedgerReader
func (r *SQLiteRepository) ListAllEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	expenses, err := r.queries.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toEntries(expenses), nil
}

// ListGeocodedEntries implements services.LedgerReader
func (r *SQLiteRepository) ListGeocodedEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	expenses, err := r.queries.ListGeocodedExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list geocoded expenses: %w", err)
	}
	return toEntries(expenses), nil
}

// ListActiveChallenges implements services.ChallengeStore
func (r *SQLiteRepository) ListActiveChallenges(ctx context.Context) ([]core.Challenge, error) {
	rows, err := r.queries.ListActiveChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}

	challenges := make([]core.Challenge, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCore()
		if err != nil {
			return nil, fmt.Errorf("challenge %s: %w", row.ID, err)
		}
		challenges = append(challenges, c)
	}
	return challenges, nil
}

// GetChallenge implements services.ChallengeStore
func (r *SQLiteRepository) GetChallenge(ctx context.Context, id uuid.UUID) (core.Challenge, error) {
	row, err := r.queries.GetChallenge(ctx, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return core.Challenge{}, fmt.Errorf("challenge %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return row.toCore()
}

// CreateEnrollment implements services.ChallengeStore
func (r *SQLiteRepository) CreateEnrollment(ctx context.Context, enrollment core.Enrollment) error {
	err := r.queries.CreateUserChallenge(ctx, CreateUserChallengeParams{
		ID:            enrollment.ID.String(),
		UserID:        enrollment.UserID,
		ChallengeID:   enrollment.ChallengeID.String(),
		CurrentAmount: enrollment.CurrentAmount,
		Status:        string(enrollment.Status),
		StartedAt:     enrollment.StartedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	slog.InfoContext(ctx, "Challenge enrollment created",
		"enrollment_id", enrollment.ID,
		"user_id", enrollment.UserID,
		"challenge_id", enrollment.ChallengeID)

	return nil
}

// HasActiveEnrollment implements services.ChallengeStore
func (r *SQLiteRepository) HasActiveEnrollment(ctx context.Context, userID string, challengeID uuid.UUID) (bool, error) {
	return r.queries.HasActiveUserChallenge(ctx, userID, challengeID.String())
}

// ListUserChallenges implements services.ChallengeStore
func (r *SQLiteRepository) ListUserChallenges(ctx context.Context, userID string) ([]core.EnrolledChallenge, error) {
	rows, err := r.queries.ListUserChallenges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user challenges: %w", err)
	}
	return toEnrolledChallenges(rows)
}

// ListActiveEnrollments implements services.EnrollmentStore
func (r *SQLiteRepository) ListActiveEnrollments(ctx context.Context, userID string, challengeType core.ChallengeType) ([]core.EnrolledChallenge, error) {
	rows, err := r.queries.ListActiveUserChallengesByType(ctx, userID, string(challengeType))
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return toEnrolledChallenges(rows)
}

// UpdateEnrollment implements services.EnrollmentStore
func (r *SQLiteRepository) UpdateEnrollment(ctx context.Context, update core.EnrollmentUpdate) error {
	params := UpdateUserChallengeParams{
		ID:            update.ID.String(),
		CurrentAmount: update.CurrentAmount,
		Status:        string(update.Status),
	}
	if update.CompletedAt != nil {
		params.CompletedAt = sql.NullTime{Time: update.CompletedAt.UTC(), Valid: true}
	}
	if update.ProgressData != nil {
		params.ProgressData = sql.NullString{String: string(update.ProgressData), Valid: true}
	}

	affected, err := r.queries.UpdateUserChallenge(ctx, params)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("enrollment %s: %w", update.ID, core.ErrNotFound)
	}
	return nil
}

// ListUsersWithActiveEnrollments implements services.UserLister
func (r *SQLiteRepository) ListUsersWithActiveEnrollments(ctx context.Context, limit int) ([]string, error) {
	userIDs, err := r.queries.ListUsersWithActiveChallenges(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list users with active challenges: %w", err)
	}
	return userIDs, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toEntries(expenses []Expense) []core.LedgerEntry {
	entries := make([]core.LedgerEntry, len(expenses))
	for i, e := range expenses {
		entries[i] = e.toCore()
	}
	return entries
}

func toEnrolledChallenges(rows []UserChallengeRow) ([]core.EnrolledChallenge, error) {
	out := make([]core.EnrolledChallenge, 0, len(rows))
	for _, row := range rows {
		ec, err := row.toCore()
		if err != nil {
			return nil, fmt.Errorf("enrollment %s: %w", row.UserChallenge.ID, err)
		}
		out = append(out, ec)
	}
	return out, nil
}
