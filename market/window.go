package market

import "sync"

// Window keeps the most recent Cap samples in arrival order.
type Window struct {
	mu   sync.RWMutex
	buf  []float64
	head int // next write position
	size int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

func (w *Window) Cap() int { return len(w.buf) }

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Ready reports whether the window is full.
func (w *Window) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size == len(w.buf)
}

// Push appends v, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

// Snapshot returns a fresh oldest-first copy of the samples.
func (w *Window) Snapshot() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]float64, w.size)
	start := (w.head - w.size + len(w.buf)) % len(w.buf)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Resize changes the capacity, keeping the newest samples.
func (w *Window) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	snap := w.Snapshot()
	if len(snap) > capacity {
		snap = snap[len(snap)-capacity:]
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = make([]float64, capacity)
	copy(w.buf, snap)
	w.size = len(snap)
	w.head = w.size % capacity
}
