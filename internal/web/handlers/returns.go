package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/daro-kh/leavegate/internal/confirm"
	"github.com/daro-kh/leavegate/internal/geofence"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/go-chi/chi/v5"
)

// maxFrameBytes caps a single pushed camera frame.
const maxFrameBytes = 8 << 20

// TrackedAttempt bundles a running confirmation attempt with the feeds the
// browser drives and the broadcaster the SSE stream reads.
type TrackedAttempt struct {
	EventBroadcaster

	Attempt *confirm.Attempt
	Frames  *scan.FrameFeed
	Fixes   *confirm.FixFeed
}

// AttemptManager tracks in-flight confirmation attempts by ID.
type AttemptManager struct {
	mu       sync.RWMutex
	attempts map[string]*TrackedAttempt
}

// NewAttemptManager creates an empty attempt manager.
func NewAttemptManager() *AttemptManager {
	return &AttemptManager{attempts: make(map[string]*TrackedAttempt)}
}

// StartAttempt launches a confirmation attempt and tracks it.
func (m *AttemptManager) StartAttempt(ctx context.Context, orch *confirm.Orchestrator, requestID string) (*TrackedAttempt, error) {
	ta := &TrackedAttempt{
		Frames: scan.NewFrameFeed(),
		Fixes:  confirm.NewFixFeed(),
	}

	attempt, err := orch.Start(ctx, confirm.AttemptConfig{
		RequestID: requestID,
		Camera:    ta.Frames,
		Locator:   ta.Fixes,
		Events:    ta,
	})
	if err != nil {
		return nil, err
	}
	ta.Attempt = attempt

	m.mu.Lock()
	m.attempts[attempt.ID] = ta
	m.mu.Unlock()

	return ta, nil
}

// Get returns a tracked attempt by ID, or nil.
func (m *AttemptManager) Get(id string) *TrackedAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts[id]
}

// Delete removes a tracked attempt.
func (m *AttemptManager) Delete(id string) {
	m.mu.Lock()
	delete(m.attempts, id)
	m.mu.Unlock()
}

// ReturnsHandler exposes the return-confirmation pipeline over HTTP.
type ReturnsHandler struct {
	orchestrator *confirm.Orchestrator
	manager      *AttemptManager

	// baseCtx outlives individual requests; attempts keep running while the
	// browser reconnects its event stream.
	baseCtx context.Context
}

// NewReturnsHandler creates a returns handler.
func NewReturnsHandler(baseCtx context.Context, orch *confirm.Orchestrator, manager *AttemptManager) *ReturnsHandler {
	return &ReturnsHandler{
		orchestrator: orch,
		manager:      manager,
		baseCtx:      baseCtx,
	}
}

// Start launches a confirmation attempt for an out request.
// POST /requests/out/{id}/return
func (h *ReturnsHandler) Start(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		respondError(w, http.StatusBadRequest, "missing request ID")
		return
	}

	ta, err := h.manager.StartAttempt(h.baseCtx, h.orchestrator, requestID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("return confirmation started for request %s (attempt %s)",
		sanitizeForLog(requestID), ta.Attempt.ID)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"attempt_id": ta.Attempt.ID,
		"request_id": requestID,
	})
}

// Status reports the attempt's current stage.
// GET /returns/{attemptId}
func (h *ReturnsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"attempt_id": ta.Attempt.ID,
		"stage":      ta.Attempt.Stage(),
	}
	if err := ta.Attempt.Err(); err != nil {
		resp["error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Events streams pipeline progress over SSE.
// GET /returns/{attemptId}/events
func (h *ReturnsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}
	streamEvents(w, r, &ta.EventBroadcaster, ta.Attempt.Done())
}

// Cancel aborts the attempt while the scan is running.
// DELETE /returns/{attemptId}
func (h *ReturnsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := ta.Attempt.Cancel(); err != nil {
		if errors.Is(err, confirm.ErrNotCancellable) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Frame accepts a camera frame from the browser.
// POST /returns/{attemptId}/frame
func (h *ReturnsHandler) Frame(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}

	frame, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil || len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "empty frame")
		return
	}

	ta.Frames.Push(frame)
	respondJSON(w, http.StatusAccepted, nil)
}

// DenyCamera records that the browser refused camera access.
// POST /returns/{attemptId}/camera/deny
func (h *ReturnsHandler) DenyCamera(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ta.Frames.Deny()
	respondJSON(w, http.StatusOK, nil)
}

type locationFix struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Location accepts the browser's geolocation fix.
// POST /returns/{attemptId}/location
func (h *ReturnsHandler) Location(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var fix locationFix
	if err := decodeJSON(r, &fix); err != nil || fix.Lat == nil || fix.Lng == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ta.Fixes.Offer(geofence.Point{Lat: *fix.Lat, Lng: *fix.Lng})
	respondJSON(w, http.StatusAccepted, nil)
}

// DenyLocation records that the browser refused to share its location.
// POST /returns/{attemptId}/location/deny
func (h *ReturnsHandler) DenyLocation(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ta.Fixes.Deny()
	respondJSON(w, http.StatusOK, nil)
}

// LocationUnsupported records that the client cannot geolocate at all.
// POST /returns/{attemptId}/location/unsupported
func (h *ReturnsHandler) LocationUnsupported(w http.ResponseWriter, r *http.Request) {
	ta, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ta.Fixes.Unsupported()
	respondJSON(w, http.StatusOK, nil)
}

func (h *ReturnsHandler) lookup(w http.ResponseWriter, r *http.Request) (*TrackedAttempt, bool) {
	id := chi.URLParam(r, "attemptId")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing attempt ID")
		return nil, false
	}
	ta := h.manager.Get(id)
	if ta == nil {
		respondError(w, http.StatusNotFound, "attempt not found")
		return nil, false
	}
	return ta, true
}
