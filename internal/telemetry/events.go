package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

// subscriberBuffer is the per-client queue length. A client that falls
// further behind loses events.
const subscriberBuffer = 64

// EventHub fans progress events out to Server-Sent Events clients.
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan orchestrator.ProgressEvent]struct{}
	closed bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan orchestrator.ProgressEvent]struct{})}
}

// Publish delivers ev to every connected client without blocking.
func (h *EventHub) Publish(ev orchestrator.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every open stream. Later requests get 503.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	clear(h.subs)
}

func (h *EventHub) subscribe() (chan orchestrator.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan orchestrator.ProgressEvent, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan orchestrator.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeHTTP streams events to one client until it disconnects or the hub
// closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	sw := newSSEWriter(w)
	sw.init()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sw.writeEvent(newEventView(ev)); err != nil {
				return
			}
		}
	}
}

// eventView is the JSON payload of one progress event.
type eventView struct {
	TaskID  string `json:"taskId"`
	Path    string `json:"path"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
}

func newEventView(ev orchestrator.ProgressEvent) eventView {
	return eventView{
		TaskID:  ev.TaskID,
		Path:    ev.Path,
		Type:    ev.Type.String(),
		Status:  string(ev.Status),
		Attempt: ev.Attempt,
		Message: ev.Message,
	}
}

// sseWriter writes Server-Sent Events to an http.ResponseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter wraps w. Without http.Flusher, writes may be buffered.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

// init sets the stream headers and flushes them. Call it once, before the
// first event.
func (sw *sseWriter) init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// writeEvent writes v as a single "data: <json>" frame and flushes.
func (sw *sseWriter) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
