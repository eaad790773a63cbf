package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// Row types mirror the table shapes. Conversion to core types happens in the
// repository so nullable columns never leak past this package.

type Expense struct {
	ID           int64
	UserID       string
	Description  string
	AmountCents  int64
	Category     string
	ExpenseDate  time.Time
	LocationName string
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Challenge struct {
	ID            string
	Title         string
	Description   string
	ChallengeType string
	Category      string
	TargetAmount  int64
	DurationDays  int64
	IsActive      bool
}

type UserChallenge struct {
	ID            string
	UserID        string
	ChallengeID   string
	CurrentAmount int64
	Status        string
	StartedAt     time.Time
	CompletedAt   sql.NullTime
	ProgressData  sql.NullString
}

// UserChallengeRow is a user_challenges row joined with its challenge.
type UserChallengeRow struct {
	UserChallenge
	Challenge Challenge
}

func (e Expense) toCore() core.LedgerEntry {
	entry := core.LedgerEntry{
		ID:           e.ID,
		UserID:       e.UserID,
		Description:  e.Description,
		Amount:       core.Money{Cents: e.AmountCents},
		Category:     e.Category,
		ExpenseDate:  e.ExpenseDate,
		LocationName: e.LocationName,
	}
	if e.Latitude.Valid && e.Longitude.Valid {
		lat, lon := e.Latitude.Float64, e.Longitude.Float64
		entry.Latitude, entry.Longitude = &lat, &lon
	}
	return entry
}

func (c Challenge) toCore() (core.Challenge, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return core.Challenge{}, err
	}
	return core.Challenge{
		ID:           id,
		Title:        c.Title,
		Description:  c.Description,
		Type:         core.ChallengeType(c.ChallengeType),
		Category:     c.Category,
		TargetAmount: c.TargetAmount,
		DurationDays: int(c.DurationDays),
		IsActive:     c.IsActive,
	}, nil
}

func (uc UserChallenge) toCore() (core.Enrollment, error) {
	id, err := uuid.Parse(uc.ID)
	if err != nil {
		return core.Enrollment{}, err
	}
	challengeID, err := uuid.Parse(uc.ChallengeID)
	if err != nil {
		return core.Enrollment{}, err
	}

	enrollment := core.Enrollment{
		ID:            id,
		UserID:        uc.UserID,
		ChallengeID:   challengeID,
		CurrentAmount: uc.CurrentAmount,
		Status:        core.Status(uc.Status),
		StartedAt:     uc.StartedAt,
	}
	if uc.CompletedAt.Valid {
		t := uc.CompletedAt.Time
		enrollment.CompletedAt = &t
	}
	if uc.ProgressData.Valid {
		enrollment.ProgressData = []byte(uc.ProgressData.String)
	}
	return enrollment, nil
}

func (r UserChallengeRow) toCore() (core.EnrolledChallenge, error) {
	enrollment, err := r.UserChallenge.toCore()
	if err != nil {
		return core.EnrolledChallenge{}, err
	}
	challenge, err := r.Challenge.toCore()
	if err != nil {
		return core.EnrolledChallenge{}, err
	}
	return core.EnrolledChallenge{Enrollment: enrollment, Challenge: challenge}, nil
}
