// Package services provides business logic and orchestration for the expense
// ledger, the challenge catalog and the progress tracking engine.
package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// Goal identifies a challenge's evaluation algorithm by its type and
// category sub-selector.
type Goal struct {
	Type     core.ChallengeType
	Category string
}

func (g Goal) String() string {
	return string(g.Type) + "/" + g.Category
}

// Evaluator recomputes an enrollment's derived progress from the entries
// already filtered to its window (and, for spending, its category). The
// returned payload is the opaque progress_data blob, nil when the goal has
// none.
type Evaluator interface {
	Evaluate(entries []core.LedgerEntry, target int64) (current int64, progress []byte, completed bool)
}

// BudgetEvaluator sums entry amounts against a spending ceiling. Staying at
// or under the target is success, no matter how early the evaluation runs.
type BudgetEvaluator struct{}

func (BudgetEvaluator) Evaluate(entries []core.LedgerEntry, target int64) (int64, []byte, bool) {
	var sum int64
	for _, e := range entries {
		sum += e.Amount.Cents
	}
	return sum, nil, sum <= target
}

// StreakEvaluator measures the longest run of consecutive calendar days
// carrying at least one entry.
type StreakEvaluator struct{}

func (StreakEvaluator) Evaluate(entries []core.LedgerEntry, target int64) (int64, []byte, bool) {
	streak := longestStreak(entries)
	return streak, nil, streak >= target
}

// CountEvaluator counts raw entries; same-day duplicates count individually.
type CountEvaluator struct{}

func (CountEvaluator) Evaluate(entries []core.LedgerEntry, target int64) (int64, []byte, bool) {
	count := int64(len(entries))
	return count, nil, count >= target
}

// LocationsEvaluator counts distinct non-empty location names.
type LocationsEvaluator struct{}

func (LocationsEvaluator) Evaluate(entries []core.LedgerEntry, target int64) (int64, []byte, bool) {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.LocationName != "" {
			seen[e.LocationName] = struct{}{}
		}
	}
	names := sortedKeys(seen)
	current := int64(len(names))
	return current, marshalProgress(progressPayload{Locations: names}), current >= target
}

// CitiesEvaluator counts distinct city tokens derived from location names.
type CitiesEvaluator struct{}

func (CitiesEvaluator) Evaluate(entries []core.LedgerEntry, target int64) (int64, []byte, bool) {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.LocationName == "" {
			continue
		}
		if city := core.CityFromLocation(e.LocationName); city != "" {
			seen[city] = struct{}{}
		}
	}
	cities := sortedKeys(seen)
	current := int64(len(cities))
	return current, marshalProgress(progressPayload{Cities: cities}), current >= target
}

type progressPayload struct {
	Locations []string `json:"locations,omitempty"`
	Cities    []string `json:"cities,omitempty"`
}

// marshalProgress serializes a progress payload. The list is sorted by the
// caller so repeated recomputes produce byte-identical blobs.
func marshalProgress(p progressPayload) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// longestStreak returns the length of the longest run of consecutive
// calendar days among the entries' dates, de-duplicated per day.
func longestStreak(entries []core.LedgerEntry) int64 {
	if len(entries) == 0 {
		return 0
	}

	seen := make(map[time.Time]struct{})
	for _, e := range entries {
		seen[core.CalendarDay(e.ExpenseDate)] = struct{}{}
	}

	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	best, current := 1, 1
	for i := 1; i < len(days); i++ {
		if core.NextCalendarDay(days[i-1], days[i]) {
			current++
			if current > best {
				best = current
			}
		} else {
			current = 1
		}
	}

	return int64(best)
}

// goalEvaluators maps the fixed sub-mode goals to their evaluators. Spending
// goals are dispatched separately because their category is a free-form
// ledger category (or "all"), not a fixed sub-mode.
var goalEvaluators = map[Goal]Evaluator{
	{core.TypeLogging, core.CategoryStreak}:        StreakEvaluator{},
	{core.TypeLogging, core.CategoryCount}:         CountEvaluator{},
	{core.TypeExploration, core.CategoryLocations}: LocationsEvaluator{},
	{core.TypeExploration, core.CategoryCities}:    CitiesEvaluator{},
}

// EvaluatorFor returns the evaluator for a goal, or core.ErrUnknownGoal for
// a {type, category} combination with no defined algorithm. Callers treat
// the unknown case as a no-op for that enrollment, never as a batch abort.
func EvaluatorFor(g Goal) (Evaluator, error) {
	if g.Type == core.TypeSpending {
		return BudgetEvaluator{}, nil
	}
	if ev, ok := goalEvaluators[g]; ok {
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnknownGoal, g)
}

// resolveStatus applies the status transition rule shared by all trackers:
// the completion check always precedes the expiry check, so an enrollment
// that is both satisfied and expired at evaluation time completes.
func resolveStatus(completed bool, now time.Time, w core.Window) core.Status {
	switch {
	case completed:
		return core.StatusCompleted
	case w.Expired(now):
		return core.StatusFailed
	default:
		return core.StatusActive
	}
}
