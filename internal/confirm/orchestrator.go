// Package confirm runs the return-confirmation pipeline: verify the returning
// user's face against their reference photo, verify their location against the
// allowed area, and only then record the return on the out request. Each
// attempt walks a fixed stage ladder and every failure is terminal.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daro-kh/leavegate/internal/face"
	"github.com/daro-kh/leavegate/internal/geofence"
	"github.com/daro-kh/leavegate/internal/metrics"
	"github.com/daro-kh/leavegate/internal/notify"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/daro-kh/leavegate/internal/store"
	"github.com/google/uuid"
)

// Stage is an attempt's position on the pipeline ladder.
type Stage string

const (
	StageRequested         Stage = "requested"
	StageDescriptorReady   Stage = "descriptor_ready"
	StageScanActive        Stage = "scan_active"
	StageFaceVerified      Stage = "face_verified"
	StageLocationRequested Stage = "location_requested"
	StageLocationVerified  Stage = "location_verified"
	StageCommitted         Stage = "committed"
	StageCancelled         Stage = "cancelled"
	StageFailed            Stage = "failed"
)

// DefaultLocationTimeout bounds the wait for a geolocation fix.
const DefaultLocationTimeout = 10 * time.Second

// Event is a progress update published to the attempt's event stream.
type Event struct {
	AttemptID  string   `json:"attempt_id"`
	Stage      Stage    `json:"stage"`
	Message    string   `json:"message,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// EventSink receives attempt events. Implementations must not block.
type EventSink interface {
	Publish(event Event)
}

// DescriptorSource resolves a reference photo URL to a face descriptor.
type DescriptorSource interface {
	Get(ctx context.Context, photoURL string) (face.Descriptor, error)
}

// Orchestrator wires the shared collaborators of all confirmation attempts.
type Orchestrator struct {
	store       store.RequestStore
	descriptors DescriptorSource
	matcher     scan.Matcher
	registry    *scan.Registry
	area        geofence.Polygon
	notifier    notify.Notifier
	metrics     *metrics.Collector

	locationTimeout time.Duration
	pollInterval    time.Duration
	failureMessage  string
	now             func() time.Time
}

// Options configures an Orchestrator.
type Options struct {
	Store           store.RequestStore
	Descriptors     DescriptorSource
	Matcher         scan.Matcher
	Registry        *scan.Registry
	AllowedArea     geofence.Polygon
	Notifier        notify.Notifier
	Metrics         *metrics.Collector
	LocationTimeout time.Duration
	PollInterval    time.Duration
	LocationFailMsg string
	Now             func() time.Time
}

// NewOrchestrator validates the collaborators and builds an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("confirm: store is required")
	}
	if opts.Descriptors == nil {
		return nil, errors.New("confirm: descriptor source is required")
	}
	if opts.Matcher == nil {
		return nil, errors.New("confirm: matcher is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("confirm: scan registry is required")
	}
	if !opts.AllowedArea.Valid() {
		return nil, errors.New("confirm: allowed area polygon is invalid")
	}
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = DefaultLocationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		store:           opts.Store,
		descriptors:     opts.Descriptors,
		matcher:         opts.Matcher,
		registry:        opts.Registry,
		area:            opts.AllowedArea,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		locationTimeout: opts.LocationTimeout,
		pollInterval:    opts.PollInterval,
		failureMessage:  opts.LocationFailMsg,
		now:             opts.Now,
	}, nil
}

// AttemptConfig describes one confirmation attempt.
type AttemptConfig struct {
	RequestID string
	Camera    scan.Camera
	Locator   Locator
	Events    EventSink
}

// Attempt is one in-flight confirmation. Attempts are created via Start.
type Attempt struct {
	ID        string
	RequestID string

	orch   *Orchestrator
	camera scan.Camera
	loc    Locator
	events EventSink

	mu      sync.Mutex
	stage   Stage
	err     error
	result  face.MatchResult
	session *scan.Session

	done chan struct{}
}

// Start launches a confirmation attempt. The pipeline runs in the background;
// progress arrives through the event sink and Done closes on any terminal
// stage.
func (o *Orchestrator) Start(ctx context.Context, cfg AttemptConfig) (*Attempt, error) {
	if cfg.RequestID == "" {
		return nil, errors.New("confirm: request ID is required")
	}
	if cfg.Camera == nil {
		return nil, errors.New("confirm: camera is required")
	}
	if cfg.Locator == nil {
		return nil, errors.New("confirm: locator is required")
	}

	a := &Attempt{
		ID:        uuid.NewString(),
		RequestID: cfg.RequestID,
		orch:      o,
		camera:    cfg.Camera,
		loc:       cfg.Locator,
		events:    cfg.Events,
		stage:     StageRequested,
		done:      make(chan struct{}),
	}

	go a.run(ctx)
	return a, nil
}

// Stage returns the attempt's current stage.
func (a *Attempt) Stage() Stage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stage
}

// Err returns the terminal error, if the attempt failed.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Result returns the accepted match result, valid once the face is verified.
func (a *Attempt) Result() face.MatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Done is closed when the attempt reaches a terminal stage.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Cancel aborts the attempt. Cancellation is only available while the face
// scan is running; past that point the pipeline runs to its own conclusion.
func (a *Attempt) Cancel() error {
	a.mu.Lock()
	if a.stage != StageScanActive {
		a.mu.Unlock()
		return ErrNotCancellable
	}
	session := a.session
	a.mu.Unlock()

	if session != nil {
		session.Cancel()
	}
	return nil
}

func (a *Attempt) setStage(s Stage) {
	a.mu.Lock()
	a.stage = s
	a.mu.Unlock()
}

func (a *Attempt) publish(stage Stage, message string, similarity *float64, err error) {
	if a.events == nil {
		return
	}
	ev := Event{AttemptID: a.ID, Stage: stage, Message: message, Similarity: similarity}
	if err != nil {
		ev.Error = err.Error()
	}
	a.events.Publish(ev)
}

// fail marks the attempt terminally failed. The scan layer has already
// released its resources by the time any scan error reaches here.
func (a *Attempt) fail(err error) {
	a.setStage(StageFailed)
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()

	message := err.Error()
	if errors.Is(err, ErrOutsideAllowedArea) && a.orch.failureMessage != "" {
		message = a.orch.failureMessage
	}
	a.publish(StageFailed, message, nil, err)
	a.orch.metrics.RecordOutcome(outcomeLabel(err))
	close(a.done)
}

func (a *Attempt) cancelled() {
	a.setStage(StageCancelled)
	a.publish(StageCancelled, "confirmation cancelled", nil, nil)
	a.orch.metrics.RecordOutcome("cancelled")
	close(a.done)
}

func (a *Attempt) run(ctx context.Context) {
	o := a.orch

	a.publish(StageRequested, "loading request", nil, nil)
	req, err := o.store.GetOutRequest(ctx, a.RequestID)
	if err != nil {
		a.fail(fmt.Errorf("load out request: %w", err))
		return
	}
	if req.Photo == "" {
		a.fail(ErrMissingReferencePhoto)
		return
	}

	ref, err := o.descriptors.Get(ctx, req.Photo)
	if err != nil {
		a.fail(fmt.Errorf("reference descriptor: %w", err))
		return
	}
	a.setStage(StageDescriptorReady)
	a.publish(StageDescriptorReady, "reference photo processed", nil, nil)

	result, ok := a.runScan(ctx, ref)
	if !ok {
		return
	}
	a.mu.Lock()
	a.result = result
	a.mu.Unlock()
	a.setStage(StageFaceVerified)
	a.publish(StageFaceVerified, "face verified", &result.Similarity, nil)

	a.setStage(StageLocationRequested)
	a.publish(StageLocationRequested, "checking location", nil, nil)

	lctx, cancel := context.WithTimeout(ctx, o.locationTimeout)
	fix, err := a.loc.Locate(lctx)
	cancel()
	if err != nil {
		a.fail(err)
		return
	}

	if !o.area.Contains(fix) {
		a.fail(ErrOutsideAllowedArea)
		return
	}
	a.setStage(StageLocationVerified)
	a.publish(StageLocationVerified, "location verified", nil, nil)

	returnedAt := o.now().Format(store.ReturnedAtLayout)
	if err := o.store.MarkReturned(ctx, a.RequestID, store.StatusReturned, returnedAt); err != nil {
		a.fail(fmt.Errorf("%w: %v", ErrPersistenceWriteFailed, err))
		return
	}

	a.setStage(StageCommitted)
	a.publish(StageCommitted, "return recorded", &result.Similarity, nil)
	o.metrics.RecordOutcome("committed")

	notify.FireAndForget(o.notifier, fmt.Sprintf(
		"<b>%s</b> (%s) %s\n🕑 %s", req.Name, req.Department, store.StatusReturned, returnedAt,
	))
	close(a.done)
}

// runScan drives the face scan and blocks until it ends. The second return is
// false when the attempt already reached a terminal stage.
func (a *Attempt) runScan(ctx context.Context, ref face.Descriptor) (face.MatchResult, bool) {
	o := a.orch

	acceptCh := make(chan face.MatchResult, 1)
	errCh := make(chan error, 1)

	cfg := scan.Config{
		Channel:  scan.ChannelReturn,
		Camera:   a.camera,
		Matcher:  timedMatcher{inner: o.matcher, metrics: o.metrics},
		Ref:      ref,
		Interval: o.pollInterval,
		OnStatus: func(message string, result *face.MatchResult) {
			var sim *float64
			if result != nil {
				sim = &result.Similarity
			}
			a.publish(StageScanActive, message, sim, nil)
		},
		OnAccept: func(result face.MatchResult) { acceptCh <- result },
		OnError:  func(err error) { errCh <- err },
	}

	session, err := o.registry.Start(ctx, cfg)
	if err != nil {
		a.fail(err)
		return face.MatchResult{}, false
	}
	o.metrics.RecordScanStart(scan.ChannelReturn)
	defer o.metrics.RecordScanEnd()

	a.mu.Lock()
	a.session = session
	a.stage = StageScanActive
	a.mu.Unlock()
	a.publish(StageScanActive, "scanning", nil, nil)

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Cancel()
		<-session.Done()
	}

	// The session closes Done only after its callbacks have fired, so a
	// buffered result is visible here if one exists.
	select {
	case result := <-acceptCh:
		return result, true
	default:
	}
	select {
	case err := <-errCh:
		a.fail(err)
	default:
		a.cancelled()
	}
	return face.MatchResult{}, false
}

// timedMatcher records per-frame match latency around the wrapped matcher.
type timedMatcher struct {
	inner   scan.Matcher
	metrics *metrics.Collector
}

func (t timedMatcher) MatchFrame(ctx context.Context, frame []byte, ref face.Descriptor) (face.MatchResult, error) {
	start := time.Now()
	result, err := t.inner.MatchFrame(ctx, frame, ref)
	t.metrics.ObserveMatchDuration(time.Since(start))
	return result, err
}

// outcomeLabel maps a terminal error onto a metrics label.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingReferencePhoto):
		return "missing_photo"
	case errors.Is(err, scan.ErrCameraPermissionDenied):
		return "camera_denied"
	case errors.Is(err, scan.ErrCameraUnavailable):
		return "camera_unavailable"
	case errors.Is(err, ErrGeolocationUnsupported):
		return "geolocation_unsupported"
	case errors.Is(err, ErrGeolocationTimeout):
		return "geolocation_timeout"
	case errors.Is(err, ErrGeolocationDenied):
		return "geolocation_denied"
	case errors.Is(err, ErrOutsideAllowedArea):
		return "outside_area"
	case errors.Is(err, ErrPersistenceWriteFailed):
		return "commit_failed"
	default:
		return "error"
	}
}
