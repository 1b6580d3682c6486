package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/daro-kh/leavegate/internal/confirm"
)

// eventChannelBuffer bounds the per-listener event queue. Slow listeners drop
// events rather than block the pipeline.
const eventChannelBuffer = 64

// EventBroadcaster fans pipeline events out to SSE listeners. It satisfies
// confirm.EventSink so the orchestrator can publish into it directly.
type EventBroadcaster struct {
	mu        sync.RWMutex
	listeners []chan confirm.Event
	history   []confirm.Event
}

// Publish implements confirm.EventSink.
func (b *EventBroadcaster) Publish(event confirm.Event) {
	b.mu.Lock()
	b.history = append(b.history, event)
	listeners := make([]chan confirm.Event, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, listener := range listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// AddListener registers a listener and replays events published so far, so a
// client that connects late still sees the full stage ladder.
func (b *EventBroadcaster) AddListener() chan confirm.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan confirm.Event, eventChannelBuffer)
	for _, ev := range b.history {
		select {
		case ch <- ev:
		default:
		}
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener unregisters and closes a listener channel.
func (b *EventBroadcaster) RemoveListener(ch chan confirm.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

// streamEvents streams broadcaster events to the client until the pipeline
// reaches a terminal stage or the client disconnects.
func streamEvents(w http.ResponseWriter, r *http.Request, broadcaster *EventBroadcaster, done <-chan struct{}) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventCh := broadcaster.AddListener()
	defer broadcaster.RemoveListener(eventCh)

	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, string(event.Stage), event)
			if isTerminalStage(event.Stage) {
				// Drain anything already queued before closing the stream.
				for {
					select {
					case event, ok := <-eventCh:
						if !ok {
							return
						}
						sendSSEEvent(w, flusher, string(event.Stage), event)
					default:
						return
					}
				}
			}
		case <-done:
			// Terminal events are in the listener buffer; loop once more to
			// flush them out.
			done = nil
		}
	}
}

func isTerminalStage(stage confirm.Stage) bool {
	return stage == confirm.StageCommitted || stage == confirm.StageCancelled || stage == confirm.StageFailed
}
