package projection

import (
	"sync"
	"time"
)

// Key identifies a highlighted entity.
type Key struct {
	Table string
	ID    int64
}

// Highlighter flags entities for a fixed window. Flags are local to one
// view and clear on their own timer.
type Highlighter struct {
	window   time.Duration
	onChange func()

	mu      sync.Mutex
	stopped bool
	gen     uint64
	active  map[Key]uint64
	timers  map[Key]*time.Timer
}

func NewHighlighter(window time.Duration, onChange func()) *Highlighter {
	if onChange == nil {
		onChange = func() {}
	}
	return &Highlighter{
		window:   window,
		onChange: onChange,
		active:   make(map[Key]uint64),
		timers:   make(map[Key]*time.Timer),
	}
}

// Flag highlights k, restarting its window if already active.
func (h *Highlighter) Flag(k Key) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.window <= 0 {
		return
	}

	if t, ok := h.timers[k]; ok {
		t.Stop()
	}
	h.gen++
	gen := h.gen
	h.active[k] = gen
	h.timers[k] = time.AfterFunc(h.window, func() { h.expire(k, gen) })
}

func (h *Highlighter) expire(k Key, gen uint64) {
	h.mu.Lock()
	if h.stopped || h.active[k] != gen {
		h.mu.Unlock()
		return
	}
	delete(h.active, k)
	delete(h.timers, k)
	h.mu.Unlock()

	h.onChange()
}

func (h *Highlighter) Active(k Key) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.active[k]
	return ok
}

// Count returns the number of active highlights.
func (h *Highlighter) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Stop cancels every pending timer.
func (h *Highlighter) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for k, t := range h.timers {
		t.Stop()
		delete(h.timers, k)
		delete(h.active, k)
	}
}
