package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Summary tracks count, total and max of observed durations.
type Summary struct {
	count   uint64
	totalNS uint64
	maxNS   uint64
}

func (s *Summary) Observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	ns := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.totalNS, ns)
	for {
		cur := atomic.LoadUint64(&s.maxNS)
		if ns <= cur || atomic.CompareAndSwapUint64(&s.maxNS, cur, ns) {
			return
		}
	}
}

type SummarySnapshot struct {
	Count  uint64  `json:"count"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

func (s *Summary) Snapshot() SummarySnapshot {
	count := atomic.LoadUint64(&s.count)
	total := atomic.LoadUint64(&s.totalNS)
	snap := SummarySnapshot{
		Count: count,
		MaxMS: float64(atomic.LoadUint64(&s.maxNS)) / float64(time.Millisecond),
	}
	if count > 0 {
		snap.MeanMS = float64(total) / float64(count) / float64(time.Millisecond)
	}
	return snap
}

// Registry hands out named counters and summaries, creating them on first use.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Counter
	summaries map[string]*Summary
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Counter),
		summaries: make(map[string]*Summary),
	}
}

func (r *Registry) Counter(name string) *Counter {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; !ok {
		c = &Counter{}
		r.counters[name] = c
	}
	return c
}

func (r *Registry) Summary(name string) *Summary {
	r.mu.RLock()
	s, ok := r.summaries[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.summaries[name]; !ok {
		s = &Summary{}
		r.summaries[name] = s
	}
	return s
}

type Snapshot struct {
	Counters  map[string]uint64          `json:"counters"`
	Summaries map[string]SummarySnapshot `json:"summaries"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:  make(map[string]uint64, len(r.counters)),
		Summaries: make(map[string]SummarySnapshot, len(r.summaries)),
	}
	for name, c := range r.counters {
		snap.Counters[name] = c.Load()
	}
	for name, s := range r.summaries {
		snap.Summaries[name] = s.Snapshot()
	}
	return snap
}

// Names lists every registered metric, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.counters)+len(r.summaries))
	for name := range r.counters {
		names = append(names, name)
	}
	for name := range r.summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry.
var Default = NewRegistry()

const (
	NotificationsReceived = "changefeed_notifications_received"
	NotificationsDropped  = "changefeed_notifications_dropped"
	RefetchesIssued       = "projection_refetches_issued"
	StaleResponsesDropped = "projection_stale_responses_dropped"
	RefetchFailures       = "projection_refetch_failures"
	TransitionsApplied    = "fulfillment_transitions_applied"
	TransitionsRejected   = "fulfillment_transitions_rejected"
	TransitionConflicts   = "fulfillment_transition_conflicts"
	ReportDuration        = "analytics_report_duration"
	ReportCacheHits       = "analytics_cache_hits"
)
