package orchestrator

import (
	"fmt"
	"path/filepath"
)

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan ProgressEvent, 64),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	name := filepath.Base(event.Path)
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  \u25cb %s (%s, pending)", name, event.Type)
	case ProgressWorking:
		return fmt.Sprintf("  \u25cf %s...", name)
	case ProgressRetrying:
		return fmt.Sprintf("  \u21bb %s retry after attempt %d: %s", name, event.Attempt, event.Message)
	case ProgressComplete:
		return fmt.Sprintf("  \u2713 %s complete", name)
	case ProgressFailed:
		return fmt.Sprintf("  \u2717 %s failed: %s", name, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", name)
	}
}
