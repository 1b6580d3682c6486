package scan

import (
	"context"
	"sync"
)

// FrameFeed is a Camera fed by an external client. Browsers post JPEG frames
// over HTTP; the scan loop pulls the most recent one. Only the latest frame is
// kept, frames are never retained beyond one matching attempt.
type FrameFeed struct {
	mu     sync.Mutex
	latest []byte
	denied bool
	closed bool
}

// NewFrameFeed creates an empty feed.
func NewFrameFeed() *FrameFeed {
	return &FrameFeed{}
}

// Push stores a frame as the latest sample, replacing any unconsumed one.
// Frames pushed after the feed is closed are dropped.
func (f *FrameFeed) Push(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.denied {
		return
	}
	f.latest = frame
}

// Deny records that the client refused camera access. The scan loop surfaces
// this as ErrCameraPermissionDenied on its next tick.
func (f *FrameFeed) Deny() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = true
	f.latest = nil
}

// Open implements Camera.
func (f *FrameFeed) Open(ctx context.Context) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return nil, ErrCameraPermissionDenied
	}
	if f.closed {
		return nil, ErrCameraUnavailable
	}
	return &feedStream{feed: f}, nil
}

// feedStream adapts the feed to the Stream interface.
type feedStream struct {
	feed *FrameFeed
}

// Frame returns the latest pushed frame and consumes it. ErrFrameNotReady is
// returned while the client has not delivered a new frame yet.
func (s *feedStream) Frame(ctx context.Context) ([]byte, error) {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.feed.denied {
		return nil, ErrCameraPermissionDenied
	}
	if s.feed.closed {
		return nil, ErrCameraUnavailable
	}
	if s.feed.latest == nil {
		return nil, ErrFrameNotReady
	}
	frame := s.feed.latest
	s.feed.latest = nil
	return frame, nil
}

// Close releases the feed. Subsequent pushes are dropped.
func (s *feedStream) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.feed.closed = true
	s.feed.latest = nil
	return nil
}
