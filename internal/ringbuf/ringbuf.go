// Package ringbuf provides a bounded append-only log that keeps only the most
// recent entries.
package ringbuf

// Ring holds at most Cap entries. Appending beyond capacity evicts the oldest
// entry. Ring is not safe for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// New creates a Ring with the given capacity. A capacity below 1 is treated
// as 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Cap returns the maximum number of retained entries.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of retained entries.
func (r *Ring[T]) Len() int { return r.size }

// Append adds v as the newest entry. When the ring is full the oldest entry
// is returned with evicted set to true.
func (r *Ring[T]) Append(v T) (old T, evicted bool) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return old, false
	}
	old = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return old, true
}

// Newest returns a copy of the entries ordered newest first.
func (r *Ring[T]) Newest() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+r.size-1-i)%len(r.buf)]
	}
	return out
}

// Update applies fn to entries from newest to oldest until fn returns true.
// It reports whether any entry matched.
func (r *Ring[T]) Update(fn func(*T) bool) bool {
	for i := 0; i < r.size; i++ {
		idx := (r.start + r.size - 1 - i) % len(r.buf)
		if fn(&r.buf[idx]) {
			return true
		}
	}
	return false
}

// Find returns the newest entry matching pred.
func (r *Ring[T]) Find(pred func(T) bool) (T, bool) {
	for i := 0; i < r.size; i++ {
		v := r.buf[(r.start+r.size-1-i)%len(r.buf)]
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Reset drops every entry.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.size = 0, 0
}
