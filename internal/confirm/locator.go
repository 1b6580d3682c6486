package confirm

import (
	"context"
	"sync"

	"github.com/daro-kh/leavegate/internal/geofence"
)

// Locator produces a single location fix. Implementations block until a fix is
// available, the request is refused, or the context expires.
type Locator interface {
	Locate(ctx context.Context) (geofence.Point, error)
}

type fixResult struct {
	point geofence.Point
	err   error
}

// FixFeed is a Locator fed by an external client: the browser posts the
// device's geolocation fix (or its refusal) over HTTP and Locate delivers it
// to the waiting pipeline. Only the first resolution counts.
type FixFeed struct {
	mu       sync.Mutex
	resolved bool
	ch       chan fixResult
}

// NewFixFeed creates an unresolved feed.
func NewFixFeed() *FixFeed {
	return &FixFeed{ch: make(chan fixResult, 1)}
}

// Offer delivers a location fix. Later offers and denials are ignored.
func (f *FixFeed) Offer(pt geofence.Point) {
	f.resolve(fixResult{point: pt})
}

// Deny records that the client refused to share its location.
func (f *FixFeed) Deny() {
	f.resolve(fixResult{err: ErrGeolocationDenied})
}

// Unsupported records that the client cannot produce a fix at all.
func (f *FixFeed) Unsupported() {
	f.resolve(fixResult{err: ErrGeolocationUnsupported})
}

func (f *FixFeed) resolve(r fixResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.resolved = true
	f.ch <- r
}

// Locate implements Locator. A context deadline maps to ErrGeolocationTimeout.
func (f *FixFeed) Locate(ctx context.Context) (geofence.Point, error) {
	select {
	case r := <-f.ch:
		return r.point, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return geofence.Point{}, ErrGeolocationTimeout
		}
		return geofence.Point{}, ctx.Err()
	}
}
