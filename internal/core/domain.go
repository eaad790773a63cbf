package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSpending    ChallengeType = "spending"
	TypeLogging     ChallengeType = "logging"
	TypeExploration ChallengeType = "exploration"
)

// Category values are sub-selectors whose meaning depends on the challenge type.
const (
	CategoryAll       = "all"       // spending: no category filter
	CategoryStreak    = "streak"    // logging: consecutive calendar days
	CategoryCount     = "count"     // logging: raw entry count
	CategoryLocations = "locations" // exploration: distinct location names
	CategoryCities    = "cities"    // exploration: distinct derived cities
)

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type (
	ChallengeType string

	Status string

	// Challenge is an immutable catalog entry. TargetAmount is in cents for
	// spending challenges and a plain count for logging and exploration ones.
	Challenge struct {
		ID           uuid.UUID
		Title        string
		Description  string
		Type         ChallengeType
		Category     string
		TargetAmount int64
		DurationDays int
		IsActive     bool
	}

	// Enrollment is a user's time-boxed attempt at a challenge. StartedAt is
	// set once at creation; CompletedAt is set exactly once on the transition
	// to completed. CurrentAmount and ProgressData are derived state, fully
	// recomputed on every tracking pass.
	Enrollment struct {
		ID            uuid.UUID
		UserID        string
		ChallengeID   uuid.UUID
		CurrentAmount int64
		Status        Status
		StartedAt     time.Time
		CompletedAt   *time.Time
		ProgressData  []byte // opaque JSON payload, tracker-specific
	}

	// EnrolledChallenge pairs an enrollment with its catalog definition, the
	// shape the trackers operate on.
	EnrolledChallenge struct {
		Enrollment
		Challenge Challenge
	}

	// LedgerEntry is a single expense record. Latitude and Longitude are both
	// present or both absent.
	LedgerEntry struct {
		ID           int64
		UserID       string
		Description  string
		Amount       Money
		Category     string
		ExpenseDate  time.Time
		LocationName string
		Latitude     *float64
		Longitude    *float64
	}

	// Window is the half-open evaluation interval [Start, End) of an
	// enrollment. It is derived from immutable fields and never stored.
	Window struct {
		Start time.Time
		End   time.Time
	}

	// EnrollmentUpdate is the tuple a tracker writes back onto an enrollment.
	// CompletedAt is set only on the transition to completed. A nil
	// ProgressData leaves the stored payload untouched.
	EnrollmentUpdate struct {
		ID            uuid.UUID
		CurrentAmount int64
		Status        Status
		CompletedAt   *time.Time
		ProgressData  []byte
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroDate         = errors.New("expense date cannot be zero")
	ErrLocationPair     = errors.New("location latitude and longitude must be provided together")
	ErrUnknownGoal      = errors.New("unknown challenge goal")
	ErrNotFound         = errors.New("not found")
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (t ChallengeType) Valid() bool {
	switch t {
	case TypeSpending, TypeLogging, TypeExploration:
		return true
	}
	return false
}

// NewWindow builds the evaluation window starting at start and spanning the
// given number of calendar days.
func NewWindow(start time.Time, durationDays int) Window {
	return Window{Start: start, End: start.AddDate(0, 0, durationDays)}
}

// Contains reports whether t falls inside the half-open interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Expired reports whether now has reached or passed the window end.
func (w Window) Expired(now time.Time) bool {
	return !now.Before(w.End)
}

// Window returns the enrollment's evaluation window.
func (ec EnrolledChallenge) Window() Window {
	return NewWindow(ec.StartedAt, ec.Challenge.DurationDays)
}

// Geocoded reports whether the entry carries a full coordinate pair.
func (e LedgerEntry) Geocoded() bool {
	return e.Latitude != nil && e.Longitude != nil
}

func (e LedgerEntry) Validate() error {
	if e.ExpenseDate.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if (e.Latitude == nil) != (e.Longitude == nil) {
		return ErrLocationPair
	}
	return nil
}

func (c Challenge) Validate() error {
	if !c.Type.Valid() {
		return errors.New("invalid challenge type")
	}
	if c.TargetAmount <= 0 {
		return ErrInvalidAmount
	}
	if c.DurationDays < 1 {
		return errors.New("duration must be at least one day")
	}
	if strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
