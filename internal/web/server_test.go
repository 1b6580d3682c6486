package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daro-kh/leavegate/internal/config"
	"github.com/daro-kh/leavegate/internal/confirm"
	"github.com/daro-kh/leavegate/internal/face"
	"github.com/daro-kh/leavegate/internal/geofence"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/daro-kh/leavegate/internal/store"
	"github.com/daro-kh/leavegate/internal/store/mock"
)

type stubDescriptors struct{}

func (stubDescriptors) Get(ctx context.Context, photoURL string) (face.Descriptor, error) {
	return face.Descriptor{1, 2, 3}, nil
}

func (stubDescriptors) Clear() {}

type acceptingMatcher struct{}

func (acceptingMatcher) MatchFrame(ctx context.Context, frame []byte, ref face.Descriptor) (face.MatchResult, error) {
	return face.MatchResult{FaceFound: true, Accepted: true, Similarity: 0.88}, nil
}

// recordingNotifier captures notification texts for assertions.
type recordingNotifier struct {
	messages chan string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) error {
	n.messages <- text
	return nil
}

var campusArea = geofence.Polygon{
	{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0},
}

func newTestServer(t *testing.T, st store.RequestStore) *Server {
	t.Helper()
	s, _ := newTestServerWithNotifier(t, st)
	return s
}

func newTestServerWithNotifier(t *testing.T, st store.RequestStore) (*Server, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{messages: make(chan string, 8)}
	registry := scan.NewRegistry()
	orch, err := confirm.NewOrchestrator(confirm.Options{
		Store:           st,
		Descriptors:     stubDescriptors{},
		Matcher:         acceptingMatcher{},
		Registry:        registry,
		AllowedArea:     campusArea,
		Notifier:        notifier,
		LocationTimeout: 2 * time.Second,
		PollInterval:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Scan.PollInterval = time.Millisecond

	s := NewServer(cfg, 0, "127.0.0.1", Deps{
		Store:         st,
		Orchestrator:  orch,
		Registry:      registry,
		Descriptors:   stubDescriptors{},
		Matcher:       acceptingMatcher{},
		Notifier:      notifier,
		SessionSecret: "test-secret",
	})
	t.Cleanup(func() { s.cancelBase() })
	return s, notifier
}

func authedRequest(t *testing.T, s *Server, method, path string, body []byte) *http.Request {
	t.Helper()
	session, err := s.sessionManager.CreateSession("user-1", "Sok Dara", "https://example.com/p.jpg")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+session.ID)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, mock.NewMockRequestStore())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRequestsRequireAuth(t *testing.T) {
	s := newTestServer(t, mock.NewMockRequestStore())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/requests/leave", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCreateAndListLeaveRequests(t *testing.T) {
	st := mock.NewMockRequestStore()
	s, notifier := newTestServerWithNotifier(t, st)

	body := []byte(`{"duration":"full day","days":2,"reason":"personal","start_date":"20/08/2026","end_date":"21/08/2026"}`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/leave", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Submission notifies the approval channel.
	select {
	case msg := <-notifier.messages:
		if !strings.Contains(msg, "Sok Dara") || !strings.Contains(msg, "personal") {
			t.Errorf("unexpected notification text: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected a submission notification")
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "GET", "/api/v1/requests/leave", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var list []store.LeaveRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list) != 1 || list[0].Reason != "personal" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestCreateLeaveRequestValidation(t *testing.T) {
	s := newTestServer(t, mock.NewMockRequestStore())

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing reason", `{"start_date":"20/08/2026","end_date":"21/08/2026"}`},
		{"bad start date", `{"reason":"x","start_date":"20.08.2026","end_date":"21/08/2026"}`},
		{"end before start", `{"reason":"x","start_date":"21/08/2026","end_date":"20/08/2026"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/leave", []byte(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreateLeaveRequestComputesSchedule(t *testing.T) {
	st := mock.NewMockRequestStore()
	s := newTestServer(t, st)

	// A day count without an end date: the end date is derived server-side,
	// and ISO input dates are converted to the stored form.
	body := []byte(`{"duration":"full day","days":3,"reason":"family","start_date":"2026-08-20"}`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/leave", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.LeaveRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.StartDate != "20/08/2026" {
		t.Errorf("expected start date 20/08/2026, got %s", created.StartDate)
	}
	if created.EndDate != "22/08/2026" {
		t.Errorf("expected derived end date 22/08/2026, got %s", created.EndDate)
	}
	if created.Days != 3 {
		t.Errorf("expected 3 days, got %v", created.Days)
	}

	// A date range without a day count: the count is computed server-side.
	body = []byte(`{"duration":"full day","reason":"family","start_date":"20/08/2026","end_date":"24/08/2026"}`)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/leave", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Days != 5 {
		t.Errorf("expected 5 computed days, got %v", created.Days)
	}
}

func TestReturnConfirmationFlow(t *testing.T) {
	st := mock.NewMockRequestStore()
	st.AddOutRequest(store.OutRequest{
		ID:     "out-1",
		UserID: "user-1",
		Name:   "Sok Dara",
		Photo:  "https://example.com/p.jpg",
		Date:   "15/08/2026",
		Status: store.StatusApproved,
	})
	s := newTestServer(t, st)

	// Kick off the attempt.
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/out/out-1/return", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("failed to decode start response: %v", err)
	}
	attemptID := started["attempt_id"]
	if attemptID == "" {
		t.Fatal("missing attempt_id")
	}

	// Feed frames until the face is verified and the pipeline asks for a
	// location fix.
	deadline := time.Now().Add(5 * time.Second)
	stage := ""
	for stage != string(confirm.StageLocationRequested) {
		if time.Now().After(deadline) {
			t.Fatalf("pipeline stuck at stage %q", stage)
		}

		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/returns/"+attemptID+"/frame", []byte("jpeg-bytes")))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("frame push failed: %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, authedRequest(t, s, "GET", "/api/v1/returns/"+attemptID, nil))
		var status map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("failed to decode status: %v", err)
		}
		stage, _ = status["stage"].(string)
		if stage == string(confirm.StageFailed) {
			t.Fatalf("pipeline failed: %v", status["error"])
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Send a fix inside the allowed area.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/returns/"+attemptID+"/location", []byte(`{"lat":5,"lng":5}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("location post failed: %d", rec.Code)
	}

	// Wait for the commit.
	for {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never committed")
		}
		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, authedRequest(t, s, "GET", "/api/v1/returns/"+attemptID, nil))
		var status map[string]any
		json.Unmarshal(rec.Body.Bytes(), &status)
		if status["stage"] == string(confirm.StageCommitted) {
			break
		}
		if status["stage"] == string(confirm.StageFailed) {
			t.Fatalf("pipeline failed: %v", status["error"])
		}
		time.Sleep(2 * time.Millisecond)
	}

	req, err := st.GetOutRequest(context.Background(), "out-1")
	if err != nil {
		t.Fatalf("GetOutRequest failed: %v", err)
	}
	if req.ReturnStatus != store.StatusReturned {
		t.Errorf("expected return status %q, got %q", store.StatusReturned, req.ReturnStatus)
	}
	if req.ReturnedAt == "" {
		t.Error("expected returned_at to be set")
	}
}

func TestReturnAttemptNotFound(t *testing.T) {
	s := newTestServer(t, mock.NewMockRequestStore())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "GET", "/api/v1/returns/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCancelReturnDuringScan(t *testing.T) {
	st := mock.NewMockRequestStore()
	st.AddOutRequest(store.OutRequest{
		ID: "out-1", UserID: "user-1", Name: "Sok Dara",
		Photo: "https://example.com/p.jpg", Status: store.StatusApproved,
	})
	s := newTestServer(t, st)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "POST", "/api/v1/requests/out/out-1/return", nil))
	var started map[string]string
	json.Unmarshal(rec.Body.Bytes(), &started)
	attemptID := started["attempt_id"]

	// Without frames the scan idles in the cancellable stage.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, authedRequest(t, s, "GET", "/api/v1/returns/"+attemptID, nil))
		var status map[string]any
		json.Unmarshal(rec.Body.Bytes(), &status)
		if status["stage"] == string(confirm.StageScanActive) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan never became active, stage %v", status["stage"])
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, authedRequest(t, s, "DELETE", "/api/v1/returns/"+attemptID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", rec.Code, rec.Body.String())
	}

	req, _ := st.GetOutRequest(context.Background(), "out-1")
	if req.ReturnStatus != "" {
		t.Error("cancelled attempt must not commit")
	}
}

func TestLoginScanFlow(t *testing.T) {
	s := newTestServer(t, mock.NewMockRequestStore())

	body := []byte(`{"user_id":"user-1","name":"Sok Dara","photo_url":"https://example.com/p.jpg"}`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/scan", bytes.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// Completing before verification is rejected.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/scan/complete", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before verification, got %d", rec.Code)
	}

	// Push frames until the accepting matcher verifies the face.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/scan/frame", bytes.NewReader([]byte("jpeg"))))

		rec = httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/scan/complete", nil))
		if rec.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("login scan never verified")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The completion response sets a usable session cookie.
	cookies := rec.Result().Cookies()
	req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Errorf("expected authenticated status, got %s", rec.Body.String())
	}
}
