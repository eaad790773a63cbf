package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/cache"
	"github.com/Phyllis9783/spendy-map-joy/internal/core"
	"github.com/Phyllis9783/spendy-map-joy/internal/services"
)

// memStore is an in-memory backend implementing the ledger, catalog and
// enrollment ports, so handler tests exercise the real service layer.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	entries     map[int64]core.LedgerEntry
	challenges  map[uuid.UUID]core.Challenge
	enrollments map[uuid.UUID]core.Enrollment
}

func newMemStore() *memStore {
	return &memStore{
		entries:     make(map[int64]core.LedgerEntry),
		challenges:  make(map[uuid.UUID]core.Challenge),
		enrollments: make(map[uuid.UUID]core.Enrollment),
	}
}

func (m *memStore) CreateEntry(_ context.Context, entry core.LedgerEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries[entry.ID] = entry
	return entry.ID, nil
}

func (m *memStore) GetEntry(_ context.Context, userID string, id int64) (core.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return core.LedgerEntry{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (m *memStore) UpdateEntry(_ context.Context, entry core.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.entries[entry.ID]
	if !ok || existing.UserID != entry.UserID {
		return fmt.Errorf("expense %d: %w", entry.ID, core.ErrNotFound)
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *memStore) DeleteEntry(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) ListEntries(_ context.Context, userID, category string, from, to time.Time) ([]core.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		if e.ExpenseDate.Before(from) || !e.ExpenseDate.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListAllEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	return m.ListEntries(ctx, userID, "", time.Time{}, time.Now().AddDate(100, 0, 0))
}

func (m *memStore) ListGeocodedEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	all, err := m.ListAllEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []core.LedgerEntry
	for _, e := range all {
		if e.Geocoded() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveChallenges(_ context.Context) ([]core.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Challenge
	for _, c := range m.challenges {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memStore) GetChallenge(_ context.Context, id uuid.UUID) (core.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return core.Challenge{}, core.ErrNotFound
	}
	return c, nil
}

func (m *memStore) CreateEnrollment(_ context.Context, enrollment core.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[enrollment.ID] = enrollment
	return nil
}

func (m *memStore) HasActiveEnrollment(_ context.Context, userID string, challengeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.UserID == userID && e.ChallengeID == challengeID && e.Status == core.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListUserChallenges(_ context.Context, userID string) ([]core.EnrolledChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.EnrolledChallenge
	for _, e := range m.enrollments {
		if e.UserID != userID {
			continue
		}
		out = append(out, core.EnrolledChallenge{Enrollment: e, Challenge: m.challenges[e.ChallengeID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Enrollment.ID.String() < out[j].Enrollment.ID.String() })
	return out, nil
}

func (m *memStore) ListActiveEnrollments(_ context.Context, userID string, challengeType core.ChallengeType) ([]core.EnrolledChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.EnrolledChallenge
	for _, e := range m.enrollments {
		c := m.challenges[e.ChallengeID]
		if e.UserID == userID && e.Status == core.StatusActive && c.Type == challengeType {
			out = append(out, core.EnrolledChallenge{Enrollment: e, Challenge: c})
		}
	}
	return out, nil
}

func (m *memStore) UpdateEnrollment(_ context.Context, update core.EnrollmentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[update.ID]
	if !ok {
		return core.ErrNotFound
	}
	e.CurrentAmount = update.CurrentAmount
	e.Status = update.Status
	e.CompletedAt = update.CompletedAt
	if update.ProgressData != nil {
		e.ProgressData = update.ProgressData
	}
	m.enrollments[update.ID] = e
	return nil
}

func newTestServer(store *memStore) *Server {
	ledger := services.NewLedgerService(store, nil)
	challenges := services.NewChallengeService(store,
		cache.NewLRU[[]core.Challenge](4, time.Minute),
		cache.NewLRU[[]core.EnrolledChallenge](16, time.Minute))
	progress := services.NewProgressService(store, store, nil)
	return NewServer(":0", ledger, challenges, progress, "", "")
}

func doRequest(t *testing.T, srv *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_RequireUserID(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.rateLimiter.stop()

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/expenses"},
		{http.MethodPost, "/api/expenses"},
		{http.MethodGet, "/api/expenses/nearby?lat=1&lon=1"},
		{http.MethodGet, "/api/me/challenges"},
		{http.MethodPost, "/api/me/challenges/track"},
	}

	for _, p := range paths {
		rec := doRequest(t, srv, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without user header: got %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestHandleCreateExpense(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", expenseRequest{
		Description: "Lunch",
		Amount:      "12.50",
		Category:    "food",
		ExpenseDate: "2026-08-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == 0 {
		t.Error("expected non-zero id")
	}
	if resp.Amount != 12.50 {
		t.Errorf("amount = %v, want 12.50", resp.Amount)
	}
	if resp.ExpenseDate != "2026-08-01" {
		t.Errorf("expense_date = %q, want 2026-08-01", resp.ExpenseDate)
	}

	stored, err := store.GetEntry(context.Background(), "user-1", resp.ID)
	if err != nil {
		t.Fatalf("stored entry missing: %v", err)
	}
	if stored.Amount.Cents != 1250 {
		t.Errorf("stored cents = %d, want 1250", stored.Amount.Cents)
	}
}

func TestHandleCreateExpense_Invalid(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.rateLimiter.stop()

	tests := []struct {
		name string
		req  expenseRequest
	}{
		{"bad amount", expenseRequest{Description: "x", Amount: "abc", Category: "food", ExpenseDate: "2026-08-01"}},
		{"bad date", expenseRequest{Description: "x", Amount: "1.00", Category: "food", ExpenseDate: "01/08/2026"}},
		{"empty description", expenseRequest{Description: "  ", Amount: "1.00", Category: "food", ExpenseDate: "2026-08-01"}},
		{"half coordinate", expenseRequest{Description: "x", Amount: "1.00", Category: "food", ExpenseDate: "2026-08-01", Latitude: ptr(25.0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleGetExpense_NotFound(t *testing.T) {
	srv := newTestServer(newMemStore())
	defer srv.rateLimiter.stop()

	rec := doRequest(t, srv, http.MethodGet, "/api/expenses/42", "user-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestHandleUpdateAndDeleteExpense(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", expenseRequest{
		Description: "Coffee", Amount: "3.00", Category: "food", ExpenseDate: "2026-08-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}
	var created expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := fmt.Sprintf("/api/expenses/%d", created.ID)
	rec = doRequest(t, srv, http.MethodPut, path, "user-1", expenseRequest{
		Description: "Espresso", Amount: "3.50", Category: "food", ExpenseDate: "2026-08-01",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := store.GetEntry(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if stored.Description != "Espresso" || stored.Amount.Cents != 350 {
		t.Errorf("update not applied: %+v", stored)
	}

	// another user cannot delete it
	rec = doRequest(t, srv, http.MethodDelete, path, "user-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user delete: got %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, path, "user-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", rec.Code)
	}
	if _, err := store.GetEntry(context.Background(), "user-1", created.ID); err == nil {
		t.Error("entry still present after delete")
	}
}

func TestHandleListExpenses_Filtered(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	seed := []expenseRequest{
		{Description: "Groceries", Amount: "20.00", Category: "food", ExpenseDate: "2026-08-01"},
		{Description: "Taxi", Amount: "9.00", Category: "transport", ExpenseDate: "2026-08-02"},
		{Description: "Dinner", Amount: "30.00", Category: "food", ExpenseDate: "2026-08-10"},
	}
	for _, req := range seed {
		if rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", req); rec.Code != http.StatusCreated {
			t.Fatalf("seed %q: got %d", req.Description, rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/expenses?category=food&from=2026-08-01&to=2026-08-05", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d: %s", rec.Code, rec.Body.String())
	}

	var got []expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Description != "Groceries" {
		t.Errorf("filtered list = %+v, want only Groceries", got)
	}
}

func TestHandleNearbyExpenses(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", expenseRequest{
		Description: "Night market", Amount: "5.00", Category: "food", ExpenseDate: "2026-08-01",
		LocationName: "Shilin", Latitude: ptr(25.0880), Longitude: ptr(121.5250),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/expenses/nearby?lat=25.0900&lon=121.5260&radius_km=2", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nearby: got %d: %s", rec.Code, rec.Body.String())
	}
	var got []expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("nearby count = %d, want 1", len(got))
	}
	if got[0].DistanceKm == nil || *got[0].DistanceKm > 2 {
		t.Errorf("distance_km = %v, want <= 2", got[0].DistanceKm)
	}

	// missing coordinates is a client error
	rec = doRequest(t, srv, http.MethodGet, "/api/expenses/nearby?lat=25.0", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing lon: got %d, want 400", rec.Code)
	}
}

func TestHandleJoinChallenge(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	active := core.Challenge{
		ID: uuid.New(), Title: "Habit Builder", Type: core.TypeLogging,
		Category: core.CategoryCount, TargetAmount: 30, DurationDays: 30, IsActive: true,
	}
	retired := core.Challenge{
		ID: uuid.New(), Title: "Old Challenge", Type: core.TypeLogging,
		Category: core.CategoryCount, TargetAmount: 10, DurationDays: 7, IsActive: false,
	}
	store.challenges[active.ID] = active
	store.challenges[retired.ID] = retired

	rec := doRequest(t, srv, http.MethodPost, "/api/challenges/"+active.ID.String()+"/join", "user-1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/challenges/"+active.ID.String()+"/join", "user-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate join: got %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/challenges/"+retired.ID.String()+"/join", "user-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("inactive join: got %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/challenges/"+uuid.NewString()+"/join", "user-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown join: got %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/challenges/not-a-uuid/join", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: got %d, want 400", rec.Code)
	}
}

func TestHandleListChallenges(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	c := core.Challenge{
		ID: uuid.New(), Title: "Place Explorer", Type: core.TypeExploration,
		Category: core.CategoryLocations, TargetAmount: 5, DurationDays: 30, IsActive: true,
	}
	store.challenges[c.ID] = c

	rec := doRequest(t, srv, http.MethodGet, "/api/challenges", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var got []challengeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Place Explorer" {
		t.Errorf("catalog = %+v", got)
	}
}

func TestHandleTrackChallenges(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	defer srv.rateLimiter.stop()

	challenge := core.Challenge{
		ID: uuid.New(), Title: "Quick Logger", Type: core.TypeLogging,
		Category: core.CategoryCount, TargetAmount: 2, DurationDays: 30, IsActive: true,
	}
	store.challenges[challenge.ID] = challenge
	enrollment := core.Enrollment{
		ID:          uuid.New(),
		UserID:      "user-1",
		ChallengeID: challenge.ID,
		Status:      core.StatusActive,
		StartedAt:   time.Now().UTC().AddDate(0, 0, -1),
	}
	store.enrollments[enrollment.ID] = enrollment

	today := time.Now().UTC().Format(time.DateOnly)
	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/expenses", "user-1", expenseRequest{
			Description: fmt.Sprintf("entry %d", i), Amount: "1.00", Category: "misc", ExpenseDate: today,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed entry %d: got %d", i, rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/me/challenges/track", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("track: got %d: %s", rec.Code, rec.Body.String())
	}

	var got []enrollmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("enrollments = %d, want 1", len(got))
	}
	if got[0].Status != string(core.StatusCompleted) {
		t.Errorf("status = %q, want completed", got[0].Status)
	}
	if got[0].CurrentAmount != 2 {
		t.Errorf("current_amount = %d, want 2", got[0].CurrentAmount)
	}
	if got[0].CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func ptr(f float64) *float64 { return &f }
