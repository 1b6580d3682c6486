package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/daro-kh/leavegate/internal/confirm"
	"github.com/daro-kh/leavegate/internal/face"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/daro-kh/leavegate/internal/web/middleware"
)

// DescriptorCache is the slice of the descriptor cache the auth handler needs:
// resolving reference photos for login and dropping cached descriptors on
// logout.
type DescriptorCache interface {
	confirm.DescriptorSource
	Clear()
}

// loginScan is the state of one face-scan login in progress.
type loginScan struct {
	EventBroadcaster

	session *scan.Session
	frames  *scan.FrameFeed

	mu       sync.Mutex
	verified bool
	userID   string
	name     string
	photo    string
}

func (s *loginScan) markVerified() {
	s.mu.Lock()
	s.verified = true
	s.mu.Unlock()
}

func (s *loginScan) isVerified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// AuthHandler implements face-scan login on the login scan channel.
type AuthHandler struct {
	registry     *scan.Registry
	descriptors  DescriptorCache
	matcher      scan.Matcher
	sessions     *middleware.SessionManager
	pollInterval time.Duration
	baseCtx      context.Context

	mu      sync.Mutex
	current *loginScan
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(baseCtx context.Context, registry *scan.Registry, descriptors DescriptorCache, matcher scan.Matcher, sessions *middleware.SessionManager, pollInterval time.Duration) *AuthHandler {
	return &AuthHandler{
		registry:     registry,
		descriptors:  descriptors,
		matcher:      matcher,
		sessions:     sessions,
		pollInterval: pollInterval,
		baseCtx:      baseCtx,
	}
}

type startLoginScan struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
}

// StartScan begins a face-scan login. Starting a new scan replaces any scan
// already running on the login channel.
// POST /auth/scan
func (h *AuthHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var body startLoginScan
	if err := decodeJSON(r, &body); err != nil || body.UserID == "" || body.PhotoURL == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ref, err := h.descriptors.Get(r.Context(), body.PhotoURL)
	if err != nil {
		log.Printf("login scan: reference descriptor for user %s failed: %v", sanitizeForLog(body.UserID), err)
		respondError(w, http.StatusUnprocessableEntity, "reference photo could not be processed")
		return
	}

	ls := &loginScan{
		frames: scan.NewFrameFeed(),
		userID: body.UserID,
		name:   body.Name,
		photo:  body.PhotoURL,
	}

	session, err := h.registry.Start(h.baseCtx, scan.Config{
		Channel:  scan.ChannelLogin,
		Camera:   ls.frames,
		Matcher:  h.matcher,
		Ref:      ref,
		Interval: h.pollInterval,
		OnStatus: func(message string, result *face.MatchResult) {
			var sim *float64
			if result != nil {
				sim = &result.Similarity
			}
			ls.Publish(confirm.Event{Stage: confirm.StageScanActive, Message: message, Similarity: sim})
		},
		OnAccept: func(result face.MatchResult) {
			ls.markVerified()
			ls.Publish(confirm.Event{Stage: confirm.StageFaceVerified, Message: "face verified", Similarity: &result.Similarity})
		},
		OnError: func(err error) {
			ls.Publish(confirm.Event{Stage: confirm.StageFailed, Error: err.Error()})
		},
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ls.session = session

	h.mu.Lock()
	h.current = ls
	h.mu.Unlock()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

// Frame accepts a camera frame for the login scan.
// POST /auth/scan/frame
func (h *AuthHandler) Frame(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.currentScan(w)
	if !ok {
		return
	}

	frame, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil || len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "empty frame")
		return
	}
	ls.frames.Push(frame)
	respondJSON(w, http.StatusAccepted, nil)
}

// DenyCamera records a camera permission refusal for the login scan.
// POST /auth/scan/camera/deny
func (h *AuthHandler) DenyCamera(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.currentScan(w)
	if !ok {
		return
	}
	ls.frames.Deny()
	respondJSON(w, http.StatusOK, nil)
}

// ScanEvents streams login scan progress over SSE.
// GET /auth/scan/events
func (h *AuthHandler) ScanEvents(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.currentScan(w)
	if !ok {
		return
	}
	streamEvents(w, r, &ls.EventBroadcaster, ls.session.Done())
}

// CancelScan aborts the login scan.
// DELETE /auth/scan
func (h *AuthHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.currentScan(w)
	if !ok {
		return
	}
	ls.session.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// CompleteScan exchanges a verified login scan for a session cookie.
// POST /auth/scan/complete
func (h *AuthHandler) CompleteScan(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.currentScan(w)
	if !ok {
		return
	}
	if !ls.isVerified() {
		respondError(w, http.StatusForbidden, "face not verified")
		return
	}

	session, err := h.sessions.CreateSession(ls.userID, ls.name, ls.photo)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessions.SetSessionCookie(w, session)

	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"user_id":    session.UserID,
		"name":       session.Name,
	})
}

// Status reports whether the request carries a valid session.
// GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       session.UserID,
		"name":          session.Name,
	})
}

// Logout drops the session and clears cached face descriptors.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetSessionFromRequest(r); session != nil {
		h.sessions.DeleteSession(session.ID)
	}
	h.sessions.ClearSessionCookie(w)
	h.descriptors.Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) currentScan(w http.ResponseWriter) (*loginScan, bool) {
	h.mu.Lock()
	ls := h.current
	h.mu.Unlock()
	if ls == nil {
		respondError(w, http.StatusNotFound, "no login scan in progress")
		return nil, false
	}
	return ls, true
}
