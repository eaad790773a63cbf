package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

func entryOn(date time.Time) core.LedgerEntry {
	return core.LedgerEntry{
		Description: "coffee",
		Amount:      core.Money{Cents: 500},
		Category:    "food",
		ExpenseDate: date,
	}
}

func entryAt(location string) core.LedgerEntry {
	return core.LedgerEntry{
		Description:  "lunch",
		Amount:       core.Money{Cents: 1200},
		Category:     "food",
		ExpenseDate:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		LocationName: location,
	}
}

func TestBudgetEvaluator(t *testing.T) {
	tests := []struct {
		name          string
		cents         []int64
		target        int64
		wantCurrent   int64
		wantCompleted bool
	}{
		{"no entries stays under budget", nil, 100000, 0, true},
		{"sum under target completes", []int64{30000, 40000}, 100000, 70000, true},
		{"sum equal to target completes", []int64{60000, 40000}, 100000, 100000, true},
		{"sum over target does not complete", []int64{60000, 50000}, 100000, 110000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []core.LedgerEntry
			for _, c := range tt.cents {
				e := entryOn(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
				e.Amount = core.Money{Cents: c}
				entries = append(entries, e)
			}

			current, progress, completed := BudgetEvaluator{}.Evaluate(entries, tt.target)
			if current != tt.wantCurrent {
				t.Errorf("current = %d, want %d", current, tt.wantCurrent)
			}
			if completed != tt.wantCompleted {
				t.Errorf("completed = %v, want %v", completed, tt.wantCompleted)
			}
			if progress != nil {
				t.Errorf("expected nil progress payload, got %s", progress)
			}
		})
	}
}

func TestStreakEvaluator(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 9, 30, 0, 0, time.UTC)
	}

	tests := []struct {
		name        string
		days        []int
		target      int64
		wantCurrent int64
		wantDone    bool
	}{
		{"no entries", nil, 3, 0, false},
		{"single day", []int{5}, 3, 1, false},
		{"gap resets the run", []int{1, 2, 4, 5, 6}, 3, 3, true},
		{"same-day duplicates collapse", []int{7, 7, 7, 8}, 3, 2, false},
		{"unsorted input", []int{12, 10, 11}, 3, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []core.LedgerEntry
			for _, d := range tt.days {
				entries = append(entries, entryOn(day(d)))
			}

			current, _, completed := StreakEvaluator{}.Evaluate(entries, tt.target)
			if current != tt.wantCurrent {
				t.Errorf("streak = %d, want %d", current, tt.wantCurrent)
			}
			if completed != tt.wantDone {
				t.Errorf("completed = %v, want %v", completed, tt.wantDone)
			}
		})
	}
}

func TestStreakEvaluatorAcrossMonthBoundary(t *testing.T) {
	entries := []core.LedgerEntry{
		entryOn(time.Date(2026, 2, 27, 23, 59, 0, 0, time.UTC)),
		entryOn(time.Date(2026, 2, 28, 1, 0, 0, 0, time.UTC)),
		entryOn(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}

	current, _, completed := StreakEvaluator{}.Evaluate(entries, 3)
	if current != 3 {
		t.Errorf("streak = %d, want 3", current)
	}
	if !completed {
		t.Error("expected completion at target")
	}
}

func TestCountEvaluatorCountsDuplicates(t *testing.T) {
	d := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	entries := []core.LedgerEntry{entryOn(d), entryOn(d), entryOn(d)}

	current, _, completed := CountEvaluator{}.Evaluate(entries, 3)
	if current != 3 {
		t.Errorf("count = %d, want 3", current)
	}
	if !completed {
		t.Error("expected completion at target")
	}
}

func TestLocationsEvaluator(t *testing.T) {
	entries := []core.LedgerEntry{
		entryAt("Starbucks, Xinyi, Taipei"),
		entryAt("Starbucks, Xinyi, Taipei"),
		entryAt("Night Market, Taipei"),
		entryAt(""),
	}

	current, progress, completed := LocationsEvaluator{}.Evaluate(entries, 2)
	if current != 2 {
		t.Errorf("distinct locations = %d, want 2", current)
	}
	if !completed {
		t.Error("expected completion at target")
	}

	var payload struct {
		Locations []string `json:"locations"`
	}
	if err := json.Unmarshal(progress, &payload); err != nil {
		t.Fatalf("unmarshal progress payload: %v", err)
	}
	want := []string{"Night Market, Taipei", "Starbucks, Xinyi, Taipei"}
	if len(payload.Locations) != len(want) {
		t.Fatalf("locations = %v, want %v", payload.Locations, want)
	}
	for i := range want {
		if payload.Locations[i] != want[i] {
			t.Errorf("locations[%d] = %q, want %q (sorted)", i, payload.Locations[i], want[i])
		}
	}
}

func TestCitiesEvaluator(t *testing.T) {
	entries := []core.LedgerEntry{
		entryAt("Starbucks, Xinyi, Taipei"),    // city Xinyi
		entryAt("Din Tai Fung, Xinyi, Taipei"), // same city
		entryAt("Cafe, Ximen, Taipei"),         // city Ximen
		entryAt("Central Park"),                // single segment falls back to itself
	}

	current, progress, completed := CitiesEvaluator{}.Evaluate(entries, 3)
	if current != 3 {
		t.Errorf("distinct cities = %d, want 3", current)
	}
	if !completed {
		t.Error("expected completion at target")
	}

	var payload struct {
		Cities []string `json:"cities"`
	}
	if err := json.Unmarshal(progress, &payload); err != nil {
		t.Fatalf("unmarshal progress payload: %v", err)
	}
	if len(payload.Cities) != 3 {
		t.Fatalf("cities payload = %v, want 3 entries", payload.Cities)
	}
}

func TestEvaluatorFor(t *testing.T) {
	tests := []struct {
		name    string
		goal    Goal
		wantErr bool
	}{
		{"spending all", Goal{core.TypeSpending, core.CategoryAll}, false},
		{"spending free-form category", Goal{core.TypeSpending, "food"}, false},
		{"logging streak", Goal{core.TypeLogging, core.CategoryStreak}, false},
		{"logging count", Goal{core.TypeLogging, core.CategoryCount}, false},
		{"exploration locations", Goal{core.TypeExploration, core.CategoryLocations}, false},
		{"exploration cities", Goal{core.TypeExploration, core.CategoryCities}, false},
		{"logging with unknown category", Goal{core.TypeLogging, "velocity"}, true},
		{"unknown type", Goal{"mystery", "streak"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := EvaluatorFor(tt.goal)
			if tt.wantErr {
				if !errors.Is(err, core.ErrUnknownGoal) {
					t.Errorf("expected ErrUnknownGoal, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev == nil {
				t.Fatal("expected an evaluator")
			}
		})
	}
}

func TestResolveStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := core.NewWindow(start, 7)

	tests := []struct {
		name      string
		completed bool
		now       time.Time
		want      core.Status
	}{
		{"in window, not satisfied", false, start.AddDate(0, 0, 3), core.StatusActive},
		{"in window, satisfied", true, start.AddDate(0, 0, 3), core.StatusCompleted},
		{"expired, not satisfied", false, start.AddDate(0, 0, 8), core.StatusFailed},
		{"expired but satisfied still completes", true, start.AddDate(0, 0, 8), core.StatusCompleted},
		{"exactly at window end fails", false, w.End, core.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveStatus(tt.completed, tt.now, w); got != tt.want {
				t.Errorf("resolveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
