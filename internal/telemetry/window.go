package telemetry

import "time"

// Window keeps the most recent samples bounded by count and by age,
// whichever is smaller. It is not safe for concurrent use; the session's
// single writer owns it.
type Window[T any] struct {
	maxSamples int
	maxAge     time.Duration
	stamp      func(T) time.Time
	items      []T
}

// NewWindow returns a window holding at most maxSamples items no older than maxAge.
func NewWindow[T any](maxSamples int, maxAge time.Duration, stamp func(T) time.Time) *Window[T] {
	if maxSamples <= 0 {
		maxSamples = 1
	}
	return &Window[T]{maxSamples: maxSamples, maxAge: maxAge, stamp: stamp, items: make([]T, 0, maxSamples)}
}

// Push appends v, evicting the oldest sample when the window is full.
func (w *Window[T]) Push(v T) {
	if len(w.items) == w.maxSamples {
		copy(w.items, w.items[1:])
		w.items = w.items[:len(w.items)-1]
	}
	w.items = append(w.items, v)
}

// Prune drops samples observed more than maxAge before now.
func (w *Window[T]) Prune(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-w.maxAge)
	keep := w.items[:0]
	for _, v := range w.items {
		if !w.stamp(v).Before(cutoff) {
			keep = append(keep, v)
		}
	}
	var zero T
	for i := len(keep); i < len(w.items); i++ {
		w.items[i] = zero
	}
	w.items = keep
}

// Items returns the retained samples, oldest first. The slice is shared; do not retain it.
func (w *Window[T]) Items() []T { return w.items }

// Len is the number of retained samples.
func (w *Window[T]) Len() int { return len(w.items) }

// Reset empties the window.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.items {
		w.items[i] = zero
	}
	w.items = w.items[:0]
}
