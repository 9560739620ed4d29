package analytics

// RollingWindow is a fixed-capacity FIFO. Pushing into a full window
// overwrites the oldest sample.
type RollingWindow[T any] struct {
	buf  []T
	head int // index of the next write
	n    int
}

// NewRollingWindow returns an empty window holding at most capacity
// samples. Capacities below one are raised to one.
func NewRollingWindow[T any](capacity int) *RollingWindow[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest sample when full.
func (w *RollingWindow[T]) Push(v T) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.n < len(w.buf) {
		w.n++
	}
}

// Values returns a copy of the samples in arrival order.
func (w *RollingWindow[T]) Values() []T {
	out := make([]T, w.n)
	start := (w.head - w.n + len(w.buf)) % len(w.buf)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Last returns the most recent sample.
func (w *RollingWindow[T]) Last() (T, bool) {
	var zero T
	if w.n == 0 {
		return zero, false
	}
	return w.buf[(w.head-1+len(w.buf))%len(w.buf)], true
}

func (w *RollingWindow[T]) Len() int { return w.n }
func (w *RollingWindow[T]) Cap() int { return len(w.buf) }

// Reset empties the window without releasing its storage.
func (w *RollingWindow[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head = 0
	w.n = 0
}
