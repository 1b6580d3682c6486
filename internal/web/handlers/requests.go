package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/daro-kh/leavegate/internal/dates"
	"github.com/daro-kh/leavegate/internal/notify"
	"github.com/daro-kh/leavegate/internal/store"
	"github.com/daro-kh/leavegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RequestsHandler serves leave and out request submission and history.
// Submissions notify the approval channel best-effort.
type RequestsHandler struct {
	store    store.RequestStore
	notifier notify.Notifier
}

// NewRequestsHandler creates a requests handler.
func NewRequestsHandler(st store.RequestStore, notifier notify.Notifier) *RequestsHandler {
	return &RequestsHandler{store: st, notifier: notifier}
}

// parseRequestDate accepts the stored dd/mm/yyyy form or the yyyy-mm-dd form
// HTML date inputs produce. Returns the stored form alongside the parsed time.
func parseRequestDate(s string) (string, time.Time, error) {
	if t, err := dates.ParseDisplay(s); err == nil {
		return s, t, nil
	}
	display, err := dates.FromISO(s)
	if err != nil {
		return "", time.Time{}, err
	}
	t, err := dates.ParseDisplay(display)
	return display, t, err
}

type createLeaveRequest struct {
	Duration  string  `json:"duration"`
	Days      float64 `json:"days"`
	Reason    string  `json:"reason"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
}

// CreateLeave submits a leave request for the logged-in user.
// POST /requests/leave
func (h *RequestsHandler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body createLeaveRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if body.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	startDate, start, err := parseRequestDate(body.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start date")
		return
	}

	// Multi-day leaves may carry an end date or just a day count; the end
	// date is derived from the count when absent.
	endDate := body.EndDate
	if endDate == "" && body.Days > 1 {
		endDate, _ = dates.AddDays(startDate, int(body.Days)-1)
	}
	if endDate == "" {
		endDate = startDate
	}
	endDate, end, err := parseRequestDate(endDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end date")
		return
	}
	if end.Before(start) {
		respondError(w, http.StatusBadRequest, "end date before start date")
		return
	}

	days := body.Days
	if days <= 0 {
		days = end.Sub(start).Hours()/24 + 1
	}

	req := &store.LeaveRequest{
		ID:          uuid.NewString(),
		UserID:      session.UserID,
		Name:        session.Name,
		Photo:       session.Photo,
		Duration:    body.Duration,
		Days:        days,
		Reason:      body.Reason,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      store.StatusPending,
		RequestedAt: time.Now(),
	}

	if err := h.store.CreateLeaveRequest(r.Context(), req); err != nil {
		log.Printf("failed to create leave request: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save request")
		return
	}

	notify.FireAndForget(h.notifier, fmt.Sprintf(
		"<b>%s</b> ស្នើសុំច្បាប់ឈប់សម្រាក %s\n📅 %s - %s (%v ថ្ងៃ)\n💬 %s",
		req.Name, req.Duration, req.StartDate, req.EndDate, req.Days, req.Reason,
	))
	respondJSON(w, http.StatusCreated, req)
}

type createOutRequest struct {
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
	Date     string `json:"date"`
}

// CreateOut submits an out request for the logged-in user.
// POST /requests/out
func (h *RequestsHandler) CreateOut(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body createOutRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if body.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	date, _, err := parseRequestDate(body.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date")
		return
	}

	req := &store.OutRequest{
		ID:          uuid.NewString(),
		UserID:      session.UserID,
		Name:        session.Name,
		Photo:       session.Photo,
		Duration:    body.Duration,
		Reason:      body.Reason,
		Date:        date,
		Status:      store.StatusPending,
		RequestedAt: time.Now(),
	}

	if err := h.store.CreateOutRequest(r.Context(), req); err != nil {
		log.Printf("failed to create out request: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save request")
		return
	}

	notify.FireAndForget(h.notifier, fmt.Sprintf(
		"<b>%s</b> ស្នើសុំចេញក្រៅ %s\n📅 %s\n💬 %s",
		req.Name, req.Duration, req.Date, req.Reason,
	))
	respondJSON(w, http.StatusCreated, req)
}

// ListLeave returns the logged-in user's leave requests, newest first.
// GET /requests/leave
func (h *RequestsHandler) ListLeave(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.store.ListLeaveRequestsByUser(r.Context(), session.UserID)
	if err != nil {
		log.Printf("failed to list leave requests: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load requests")
		return
	}
	if list == nil {
		list = []store.LeaveRequest{}
	}
	respondJSON(w, http.StatusOK, list)
}

// ListOut returns the logged-in user's out requests, newest first.
// GET /requests/out
func (h *RequestsHandler) ListOut(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.store.ListOutRequestsByUser(r.Context(), session.UserID)
	if err != nil {
		log.Printf("failed to list out requests: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load requests")
		return
	}
	if list == nil {
		list = []store.OutRequest{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetOut returns one out request, for the return-confirmation screen.
// GET /requests/out/{id}
func (h *RequestsHandler) GetOut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing request ID")
		return
	}

	req, err := h.store.GetOutRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		log.Printf("failed to get out request: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load request")
		return
	}
	respondJSON(w, http.StatusOK, req)
}
