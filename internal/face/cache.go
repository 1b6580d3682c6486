package face

import (
	"context"
	"net/http"
	"sync"
)

// computeFunc fetches and analyzes a reference photo. Swappable for tests.
type computeFunc func(ctx context.Context, photoURL string) (Descriptor, error)

// Cache memoizes the reference descriptor for a login session. The first Get
// fetches the photo and runs detection; later Gets return the cached vector.
// Concurrent Gets for the same URL share a single in-flight computation, so a
// double-tap in the UI never triggers two network fetches.
type Cache struct {
	compute computeFunc

	mu    sync.Mutex
	calls map[string]*call
}

// call tracks one computation, in-flight or completed.
type call struct {
	done chan struct{}
	desc Descriptor
	err  error
}

// NewCache creates a descriptor cache backed by the face analysis service.
// Reference photos larger than maxImageSize are downscaled before analysis.
func NewCache(client *Client, maxImageSize int) *Cache {
	httpClient := &http.Client{}
	return &Cache{
		compute: func(ctx context.Context, photoURL string) (Descriptor, error) {
			data, err := FetchImage(ctx, httpClient, photoURL)
			if err != nil {
				return nil, err
			}
			if maxImageSize > 0 {
				if resized, err := Downscale(data, maxImageSize); err == nil {
					data = resized
				}
			}
			return client.DetectSingleFace(ctx, data)
		},
		calls: make(map[string]*call),
	}
}

// NewCacheFunc creates a cache with a custom compute function. Used by tests.
func NewCacheFunc(compute computeFunc) *Cache {
	return &Cache{compute: compute, calls: make(map[string]*call)}
}

// Get returns the reference descriptor for a photo URL, computing it on first
// use. Failed computations are not memoized; the next attempt recomputes.
func (c *Cache) Get(ctx context.Context, photoURL string) (Descriptor, error) {
	c.mu.Lock()
	if existing, ok := c.calls[photoURL]; ok {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.desc, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cl := &call{done: make(chan struct{})}
	c.calls[photoURL] = cl
	c.mu.Unlock()

	cl.desc, cl.err = c.compute(ctx, photoURL)
	close(cl.done)

	if cl.err != nil {
		// Do not cache failures so a fresh attempt retries the fetch.
		c.mu.Lock()
		if c.calls[photoURL] == cl {
			delete(c.calls, photoURL)
		}
		c.mu.Unlock()
	}

	return cl.desc, cl.err
}

// Clear drops all cached descriptors. Called on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.calls = make(map[string]*call)
	c.mu.Unlock()
}
