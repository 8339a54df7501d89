package changefeed

import (
	"context"
	"sync"
	"time"

	"orderflow-be/internal/logger"
	"orderflow-be/internal/metrics"

	"go.uber.org/zap"
)

// Handler receives changes. It runs on the dispatching goroutine and must
// not block.
type Handler func(Change)

// Publisher emits changes to whatever transport backs it.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Source delivers changes from an external transport until ctx is done or
// the connection drops.
type Source interface {
	Listen(ctx context.Context, handle Handler) error
}

// Manager owns the one upstream subscription and fans each change out to
// every local subscriber of its table.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64

	minBackoff time.Duration
	maxBackoff time.Duration
	registry   *metrics.Registry
}

func NewManager(registry *metrics.Registry) *Manager {
	if registry == nil {
		registry = metrics.Default
	}
	return &Manager{
		subs:       make(map[string]map[uint64]Handler),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		registry:   registry,
	}
}

// Subscribe registers h for changes on the given tables. The returned func
// removes the subscription and is safe to call more than once.
func (m *Manager) Subscribe(tables []string, h Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	for _, t := range tables {
		if m.subs[t] == nil {
			m.subs[t] = make(map[uint64]Handler)
		}
		m.subs[t][id] = h
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for _, t := range tables {
				delete(m.subs[t], id)
			}
		})
	}
}

// SubscriberCount reports how many handlers are registered for table.
func (m *Manager) SubscriberCount(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[table])
}

// Publish dispatches c to local subscribers.
func (m *Manager) Publish(_ context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.dispatch(c)
	return nil
}

func (m *Manager) dispatch(c Change) {
	m.registry.Counter(metrics.NotificationsReceived).Inc()

	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[c.Table]))
	for _, h := range m.subs[c.Table] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(c)
	}
}

// Run pumps src into the manager, reconnecting with backoff until ctx ends.
func (m *Manager) Run(ctx context.Context, src Source) error {
	log := logger.Named("changefeed")
	backoff := m.minBackoff

	for {
		started := time.Now()
		err := src.Listen(ctx, m.dispatch)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) > m.maxBackoff {
			backoff = m.minBackoff
		}
		log.Warn("change source disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > m.maxBackoff {
			backoff = m.maxBackoff
		}
	}
}

// MultiPublisher publishes to every wrapped publisher and returns the first error.
type MultiPublisher []Publisher

func (mp MultiPublisher) Publish(ctx context.Context, c Change) error {
	var first error
	for _, p := range mp {
		if err := p.Publish(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}
