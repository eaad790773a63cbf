package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
	"github.com/Phyllis9783/spendy-map-joy/internal/services"
)

type expenseRequest struct {
	Description  string   `json:"description"`
	Amount       string   `json:"amount"` // decimal string, e.g. "12.34"
	Category     string   `json:"category"`
	ExpenseDate  string   `json:"expense_date"` // YYYY-MM-DD
	LocationName string   `json:"location_name,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

type expenseResponse struct {
	ID           int64    `json:"id"`
	Description  string   `json:"description"`
	Amount       float64  `json:"amount"`
	Category     string   `json:"category"`
	ExpenseDate  string   `json:"expense_date"`
	LocationName string   `json:"location_name,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
}

type challengeResponse struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Type         string    `json:"type"`
	Category     string    `json:"category"`
	TargetAmount int64     `json:"target_amount"`
	DurationDays int       `json:"duration_days"`
}

type enrollmentResponse struct {
	ID            uuid.UUID         `json:"id"`
	Challenge     challengeResponse `json:"challenge"`
	CurrentAmount int64             `json:"current_amount"`
	Status        string            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	EndsAt        time.Time         `json:"ends_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Progress      json.RawMessage   `json:"progress,omitempty"`
}

func toExpenseResponse(e core.LedgerEntry) expenseResponse {
	return expenseResponse{
		ID:           e.ID,
		Description:  e.Description,
		Amount:       e.Amount.Decimal(),
		Category:     e.Category,
		ExpenseDate:  e.ExpenseDate.UTC().Format(time.DateOnly),
		LocationName: e.LocationName,
		Latitude:     e.Latitude,
		Longitude:    e.Longitude,
	}
}

func toChallengeResponse(c core.Challenge) challengeResponse {
	return challengeResponse{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Type:         string(c.Type),
		Category:     c.Category,
		TargetAmount: c.TargetAmount,
		DurationDays: c.DurationDays,
	}
}

func toEnrollmentResponse(ec core.EnrolledChallenge) enrollmentResponse {
	return enrollmentResponse{
		ID:            ec.Enrollment.ID,
		Challenge:     toChallengeResponse(ec.Challenge),
		CurrentAmount: ec.Enrollment.CurrentAmount,
		Status:        string(ec.Enrollment.Status),
		StartedAt:     ec.Enrollment.StartedAt,
		EndsAt:        ec.Window().End,
		CompletedAt:   ec.Enrollment.CompletedAt,
		Progress:      json.RawMessage(ec.Enrollment.ProgressData),
	}
}

func (s *Server) parseExpense(w http.ResponseWriter, r *http.Request, uid string) (core.LedgerEntry, bool) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return core.LedgerEntry{}, false
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return core.LedgerEntry{}, false
	}

	date, err := parseDate(req.ExpenseDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expense_date, expected YYYY-MM-DD")
		return core.LedgerEntry{}, false
	}

	entry := core.LedgerEntry{
		UserID:       uid,
		Description:  sanitizeInput(req.Description),
		Amount:       core.Money{Cents: cents},
		Category:     sanitizeInput(req.Category),
		ExpenseDate:  date,
		LocationName: sanitizeInput(req.LocationName),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}

	if err := entry.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return core.LedgerEntry{}, false
	}

	return entry, true
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	entry, ok := s.parseExpense(w, r, uid)
	if !ok {
		return
	}

	id, err := s.ledger.CreateEntry(r.Context(), entry)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create expense", "user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create expense")
		return
	}

	entry.ID = id
	respondJSON(w, http.StatusCreated, toExpenseResponse(entry))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	entry, err := s.ledger.GetEntry(r.Context(), uid, id)
	if errors.Is(err, core.ErrNotFound) {
		respondError(w, http.StatusNotFound, "expense not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get expense", "user_id", uid, "expense_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get expense")
		return
	}

	respondJSON(w, http.StatusOK, toExpenseResponse(entry))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	entry, ok := s.parseExpense(w, r, uid)
	if !ok {
		return
	}
	entry.ID = id

	if err := s.ledger.UpdateEntry(r.Context(), entry); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "expense not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to update expense", "user_id", uid, "expense_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update expense")
		return
	}

	respondJSON(w, http.StatusOK, toExpenseResponse(entry))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.ledger.DeleteEntry(r.Context(), uid, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "expense not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete expense", "user_id", uid, "expense_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete expense")
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	q := r.URL.Query()
	category := sanitizeInput(q.Get("category"))

	var from, to time.Time
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		to = t
	}

	entries, err := s.ledger.ListEntries(r.Context(), uid, category, from, to)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list expenses", "user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	out := make([]expenseResponse, len(entries))
	for i, e := range entries {
		out[i] = toExpenseResponse(e)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleNearbyExpenses(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	lat, okLat := parseFloatParam(r, "lat")
	lon, okLon := parseFloatParam(r, "lon")
	if !okLat || !okLon {
		respondError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}

	radiusKm := 1.0
	if v, ok := parseFloatParam(r, "radius_km"); ok {
		radiusKm = v
	}
	if radiusKm <= 0 || radiusKm > 100 {
		respondError(w, http.StatusBadRequest, "radius_km must be between 0 and 100")
		return
	}

	nearby, err := s.ledger.Nearby(r.Context(), uid, lat, lon, radiusKm)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list nearby expenses", "user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list nearby expenses")
		return
	}

	out := make([]expenseResponse, len(nearby))
	for i, n := range nearby {
		resp := toExpenseResponse(n.LedgerEntry)
		d := n.DistanceKm
		resp.DistanceKm = &d
		out[i] = resp
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.challenges.ListCatalog(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list challenges", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list challenges")
		return
	}

	out := make([]challengeResponse, len(challenges))
	for i, c := range challenges {
		out[i] = toChallengeResponse(c)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid challenge id")
		return
	}

	enrollment, err := s.challenges.Join(r.Context(), uid, challengeID)
	switch {
	case errors.Is(err, services.ErrChallengeNotFound):
		respondError(w, http.StatusNotFound, "challenge not found")
		return
	case errors.Is(err, services.ErrChallengeInactive):
		respondError(w, http.StatusConflict, "challenge is not active")
		return
	case errors.Is(err, services.ErrAlreadyEnrolled):
		respondError(w, http.StatusConflict, "already enrolled in this challenge")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to join challenge",
			"user_id", uid, "challenge_id", challengeID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to join challenge")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":           enrollment.ID,
		"challenge_id": enrollment.ChallengeID,
		"status":       string(enrollment.Status),
		"started_at":   enrollment.StartedAt,
	})
}

func (s *Server) handleListUserChallenges(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	enrolled, err := s.challenges.ListUserChallenges(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list user challenges", "user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list user challenges")
		return
	}

	out := make([]enrollmentResponse, len(enrolled))
	for i, ec := range enrolled {
		out[i] = toEnrollmentResponse(ec)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleTrackChallenges triggers a synchronous recompute for the caller and
// returns the refreshed enrollment list. The worker performs the same pass
// on every ledger change event, so this endpoint is a manual refresh.
func (s *Server) handleTrackChallenges(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	s.progress.TrackAll(r.Context(), uid)
	trackingPassesTotal.Inc()
	s.challenges.InvalidateUserChallenges(uid)

	enrolled, err := s.challenges.ListUserChallenges(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list user challenges after tracking", "user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list user challenges")
		return
	}

	out := make([]enrollmentResponse, len(enrolled))
	for i, ec := range enrolled {
		out[i] = toEnrollmentResponse(ec)
	}
	respondJSON(w, http.StatusOK, out)
}
