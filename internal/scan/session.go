// Package scan owns the live face-scan loop: it holds the camera resource,
// polls frames against a reference descriptor at a fixed cadence, and
// guarantees the camera and the poll loop are released together on every exit
// path. One parametrized session type serves both the login and the
// return-confirmation scan channels.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/daro-kh/leavegate/internal/face"
)

// DefaultPollInterval is the cadence of live-frame matching.
const DefaultPollInterval = 500 * time.Millisecond

// Well-known scan channels. Each channel has its own camera and loop; they
// never share resources.
const (
	ChannelLogin  = "login"
	ChannelReturn = "return"
)

var (
	// ErrCameraPermissionDenied means the client refused camera access.
	ErrCameraPermissionDenied = errors.New("camera permission denied")
	// ErrCameraUnavailable means no camera source can deliver frames.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameNotReady means the video source has no frame yet; the poll
	// tick is skipped and the session stays in Polling.
	ErrFrameNotReady = errors.New("frame not ready")
)

// State is a scan session lifecycle state.
type State string

const (
	StateIdle            State = "idle"
	StateCameraRequested State = "camera_requested"
	StatePolling         State = "polling"
	StateAccepted        State = "accepted"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

// terminal reports whether a state has no outgoing transitions.
func (s State) terminal() bool {
	return s == StateAccepted || s == StateCancelled || s == StateFailed
}

// Camera grants access to a video source.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields live frames and must be closed exactly once.
type Stream interface {
	// Frame returns the most recent frame, or ErrFrameNotReady when the
	// source has nothing new yet.
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// Matcher compares a live frame against a reference descriptor.
type Matcher interface {
	MatchFrame(ctx context.Context, frame []byte, ref face.Descriptor) (face.MatchResult, error)
}

// Config describes one scan session.
type Config struct {
	Channel  string
	Camera   Camera
	Matcher  Matcher
	Ref      face.Descriptor
	Interval time.Duration

	// OnStatus receives user-facing status text on every poll outcome.
	// The result is non-nil only when a face was found but rejected.
	OnStatus func(message string, result *face.MatchResult)
	// OnAccept fires at most once, after the camera has been released.
	OnAccept func(result face.MatchResult)
	// OnError fires at most once for unrecoverable failures. Cancellation
	// does not fire it.
	OnError func(err error)
}

// Session is one active scan. Sessions are created via Registry.Start.
type Session struct {
	cfg Config

	mu     sync.Mutex
	state  State
	stream Stream
	cancel context.CancelFunc

	releaseOnce sync.Once
	done        chan struct{}
}

func newSession(cfg Config) *Session {
	return &Session{
		cfg:   cfg,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel returns the scan channel this session runs on.
func (s *Session) Channel() string {
	return s.cfg.Channel
}

// Done is closed when the session's loop has fully exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel aborts the session from any non-terminal state. The camera is
// released immediately; a matching call still in flight is discarded and no
// callback fires afterwards.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	s.mu.Unlock()

	s.release()
}

// transition moves from one state to another; returns false if the session
// left the from state in the meantime (e.g. a concurrent Cancel).
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// release stops the poll loop and closes the camera stream. Safe to call from
// both the loop goroutine and Cancel; runs exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Lock()
		stream := s.stream
		s.stream = nil
		s.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
	})
}

// fail transitions to Failed, releases resources, and reports the error.
// Resources are always released before the error surfaces.
func (s *Session) fail(from State, err error) {
	if !s.transition(from, StateFailed) {
		return
	}
	s.release()
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

func (s *Session) status(message string, result *face.MatchResult) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(message, result)
	}
}

// start launches the session loop. A session cancelled before start never
// opens the camera or runs the loop; its done channel still closes.
func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.state != StateIdle {
		// Cancelled before the loop ever ran; nothing was acquired.
		s.mu.Unlock()
		cancel()
		close(s.done)
		return
	}
	s.cancel = cancel
	s.state = StateCameraRequested
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.status("requesting camera", nil)
	stream, err := s.cfg.Camera.Open(ctx)
	if err != nil {
		s.fail(StateCameraRequested, err)
		return
	}

	s.mu.Lock()
	if s.state != StateCameraRequested {
		// Cancelled while the camera was opening; close the late stream.
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.state = StatePolling
	s.mu.Unlock()

	s.status("please face the camera", nil)
	s.poll(ctx, stream)
}

// poll runs the matching loop. Each tick runs to completion before the next
// is scheduled, so ticks never overlap. A tick whose result arrives after
// cancellation is discarded.
func (s *Session) poll(ctx context.Context, stream Stream) {
	for {
		if ctx.Err() != nil {
			s.release()
			return
		}

		frame, err := stream.Frame(ctx)
		switch {
		case err == nil:
			result, matchErr := s.cfg.Matcher.MatchFrame(ctx, frame, s.cfg.Ref)
			if ctx.Err() != nil {
				// Cancelled mid-match; the result no longer matters.
				s.release()
				return
			}
			switch {
			case matchErr != nil:
				// Analysis service hiccup; keep polling.
				s.status("verification temporarily unavailable, retrying", nil)
			case result.Accepted:
				if !s.transition(StatePolling, StateAccepted) {
					s.release()
					return
				}
				s.release()
				s.status("face verified", &result)
				if s.cfg.OnAccept != nil {
					s.cfg.OnAccept(result)
				}
				return
			case result.FaceFound:
				s.status("face does not match, please try again", &result)
			default:
				s.status("no face detected", nil)
			}
		case errors.Is(err, ErrFrameNotReady):
			// Source not ready; skip this tick.
		case errors.Is(err, ErrCameraPermissionDenied), errors.Is(err, ErrCameraUnavailable):
			s.fail(StatePolling, err)
			return
		case ctx.Err() != nil:
			s.release()
			return
		default:
			s.fail(StatePolling, err)
			return
		}

		select {
		case <-ctx.Done():
			s.release()
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// Registry enforces the one-active-session-per-channel invariant. Starting a
// session on a busy channel cancels the previous one first.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Session)}
}

// Start cancels any session already running on the channel, then starts a new
// one and returns it.
func (r *Registry) Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Camera == nil {
		return nil, errors.New("scan: camera is required")
	}
	if cfg.Matcher == nil {
		return nil, errors.New("scan: matcher is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("scan: channel is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}

	r.mu.Lock()
	prev := r.active[cfg.Channel]
	session := newSession(cfg)
	r.active[cfg.Channel] = session
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	session.start(ctx)
	return session, nil
}

// Get returns the session currently registered on a channel, or nil.
func (r *Registry) Get(channel string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[channel]
}

// Cancel aborts the session on a channel, if any.
func (r *Registry) Cancel(channel string) {
	if s := r.Get(channel); s != nil {
		s.Cancel()
	}
}
