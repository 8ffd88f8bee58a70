// Package buffer holds fixed-size containers shared by the logging and
// event layers.
package buffer

// Ring keeps the last Cap() values added to it. It is not safe for
// concurrent use.
type Ring[T any] struct {
	values []T
	next   int
	full   bool
}

// NewRing returns a ring holding size values. Sizes below one hold one.
func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{values: make([]T, max(size, 1))}
}

func (r *Ring[T]) Add(value T) {
	if r == nil {
		return
	}
	r.values[r.next] = value
	r.next++
	if r.next == len(r.values) {
		r.next = 0
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	switch {
	case r == nil:
		return 0
	case r.full:
		return len(r.values)
	default:
		return r.next
	}
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.values)
}

// List returns every value, oldest first.
func (r *Ring[T]) List() []T {
	return r.Latest(0)
}

// Latest returns the newest n values, oldest first. n <= 0 means all.
func (r *Ring[T]) Latest(n int) []T {
	size := r.Len()
	if size == 0 {
		return nil
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]T, n)
	start := r.next - n
	if start < 0 {
		start += len(r.values)
	}
	for i := range out {
		out[i] = r.values[(start+i)%len(r.values)]
	}
	return out
}
