package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// LedgerStore is the full read-write surface of the expense ledger.
type LedgerStore interface {
	LedgerReader
	CreateEntry(ctx context.Context, entry core.LedgerEntry) (int64, error)
	GetEntry(ctx context.Context, userID string, id int64) (core.LedgerEntry, error)
	UpdateEntry(ctx context.Context, entry core.LedgerEntry) error
	DeleteEntry(ctx context.Context, userID string, id int64) error
}

// NearbyEntry is a geocoded ledger entry annotated with its distance from a
// query point.
type NearbyEntry struct {
	core.LedgerEntry
	DistanceKm float64
}

// LedgerService orchestrates expense writes: validate, persist, then publish
// a change event that triggers a tracking pass for the user. Publishing is
// best effort; the local write is the source of truth.
type LedgerService struct {
	store     LedgerStore
	publisher EventPublisher
}

func NewLedgerService(store LedgerStore, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
	}
}

// CreateEntry validates and persists a new ledger entry, then publishes a
// change event.
func (s *LedgerService) CreateEntry(ctx context.Context, entry core.LedgerEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("save ledger entry: %w", err)
	}

	s.publishChange(ctx, entry.UserID, id, "created")

	return id, nil
}

// UpdateEntry validates and overwrites an existing entry, then publishes a
// change event.
func (s *LedgerService) UpdateEntry(ctx context.Context, entry core.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}

	s.publishChange(ctx, entry.UserID, entry.ID, "updated")

	return nil
}

// DeleteEntry removes an entry, then publishes a change event. Deletions
// trigger the same full recompute as creations: derived progress can shrink.
func (s *LedgerService) DeleteEntry(ctx context.Context, userID string, id int64) error {
	if err := s.store.DeleteEntry(ctx, userID, id); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}

	s.publishChange(ctx, userID, id, "deleted")

	return nil
}

// GetEntry returns a single entry owned by the user.
func (s *LedgerService) GetEntry(ctx context.Context, userID string, id int64) (core.LedgerEntry, error) {
	return s.store.GetEntry(ctx, userID, id)
}

// ListEntries returns the user's entries, newest first, optionally filtered
// by category and date range. Zero from/to mean no bound on that side.
func (s *LedgerService) ListEntries(ctx context.Context, userID, category string, from, to time.Time) ([]core.LedgerEntry, error) {
	if from.IsZero() && to.IsZero() && category == "" {
		return s.store.ListAllEntries(ctx, userID)
	}
	if to.IsZero() {
		// far enough in the future to act as an open upper bound
		to = time.Now().AddDate(100, 0, 0)
	}
	return s.store.ListEntries(ctx, userID, category, from, to)
}

// Nearby returns the user's geocoded entries within radiusKm of the query
// point, closest first.
func (s *LedgerService) Nearby(ctx context.Context, userID string, lat, lon, radiusKm float64) ([]NearbyEntry, error) {
	entries, err := s.store.ListGeocodedEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list geocoded entries: %w", err)
	}

	var nearby []NearbyEntry
	for _, e := range entries {
		d := core.DistanceKm(lat, lon, *e.Latitude, *e.Longitude)
		if d <= radiusKm {
			nearby = append(nearby, NearbyEntry{LedgerEntry: e, DistanceKm: d})
		}
	}

	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })

	return nearby, nil
}

func (s *LedgerService) publishChange(ctx context.Context, userID string, id int64, op string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping change event",
			"expense_id", id, "op", op)
		return
	}

	if err := s.publisher.PublishExpenseChanged(ctx, userID, id, op); err != nil {
		// the entry is persisted; the reconciler sweep covers the missed event
		slog.ErrorContext(ctx, "Failed to publish expense change event",
			"user_id", userID, "expense_id", id, "op", op, "error", err)
	}
}
