// Package history holds the bounded per-engine histories: recent change
// records and measured per-file analysis durations.
package history

import "sync"

// RingBuffer is a fixed-capacity FIFO that overwrites its oldest entry when
// full. It is safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.Mutex
	data  []T
	head  int // next write position
	count int
}

// NewRingBuffer creates a RingBuffer holding at most capacity items.
// A non-positive capacity falls back to 100.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &RingBuffer[T]{data: make([]T, capacity)}
}

// Push appends item, evicting the oldest entry when the buffer is full.
func (r *RingBuffer[T]) Push(items ...T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.data[r.head] = item
		r.head = (r.head + 1) % len(r.data)
		if r.count < len(r.data) {
			r.count++
		}
	}
}

// Slice returns the buffered items, oldest first.
func (r *RingBuffer[T]) Slice() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(r.count)
}

// Last returns up to n of the newest items, oldest first.
func (r *RingBuffer[T]) Last(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(min(n, r.count))
}

func (r *RingBuffer[T]) lastLocked(n int) []T {
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := (r.head - n + len(r.data)) % len(r.data)
	for i := range n {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Len returns the number of buffered items.
func (r *RingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}

