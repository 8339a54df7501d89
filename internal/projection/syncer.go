package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("projection closed")

// Fetcher is the read side of the order service the views consume.
type Fetcher interface {
	GetOrdersInRange(ctx context.Context, rng order.Range, filter order.Filter) ([]order.Order, error)
	ListDetails(ctx context.Context, rng order.Range, filter order.Filter) ([]order.OrderDetail, error)
	GetOrderWithItems(ctx context.Context, orderID int64) (*order.OrderDetail, error)
}

type Subscriber interface {
	Subscribe(tables []string, h changefeed.Handler) func()
}

// Loader returns every order in a view's scope. Details may come back
// without items when the view loads items lazily.
type Loader func(ctx context.Context) ([]order.OrderDetail, error)

type Options struct {
	Name            string
	Fetcher         Fetcher
	Feed            Subscriber
	Poller          Poller
	PollInterval    time.Duration
	HighlightWindow time.Duration
	Load            Loader
	InScope         func(order.Order) bool
	Registry        *metrics.Registry
}

// Syncer keeps a view's rows in step with the store. Every change
// notification triggers a full refetch of the affected order; the poll job
// reloads the whole scope in case notifications were lost.
//
// Responses are ordered with a logical clock: each notification stamps its
// order with the next tick, and a response issued at tick t is dropped if the
// order has since been stamped with a later tick, or if its versions are
// lower than what is already rendered.
type Syncer struct {
	opts       Options
	log        *zap.Logger
	registry   *metrics.Registry
	highlights *Highlighter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	started     bool
	closed      bool
	clock       uint64
	seq         map[int64]uint64
	rows        map[int64]order.OrderDetail
	cached      map[int64]bool
	expanded    map[int64]bool
	listeners   map[uint64]func()
	nextID      uint64
	unsubscribe func()
	stopPoll    func()
}

func NewSyncer(opts Options) *Syncer {
	if opts.Registry == nil {
		opts.Registry = metrics.Default
	}
	if opts.InScope == nil {
		opts.InScope = func(order.Order) bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		opts:      opts,
		log:       logger.Named("projection").With(zap.String("view", opts.Name)),
		registry:  opts.Registry,
		ctx:       ctx,
		cancel:    cancel,
		seq:       make(map[int64]uint64),
		rows:      make(map[int64]order.OrderDetail),
		cached:    make(map[int64]bool),
		expanded:  make(map[int64]bool),
		listeners: make(map[uint64]func()),
	}
	s.highlights = NewHighlighter(opts.HighlightWindow, s.notify)
	return s
}

// Start subscribes to the change feed, schedules the poll job and performs
// the initial load.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unsub := func() {}
	if s.opts.Feed != nil {
		unsub = s.opts.Feed.Subscribe(changefeed.Tables, s.handle)
	}

	stop := func() {}
	if s.opts.Poller != nil && s.opts.PollInterval > 0 {
		var err error
		stop, err = s.opts.Poller.Every(s.opts.PollInterval, s.poll)
		if err != nil {
			unsub()
			return fmt.Errorf("start %s: %w", s.opts.Name, err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		stop()
		return ErrClosed
	}
	s.unsubscribe = unsub
	s.stopPoll = stop
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Close tears down the subscription, the poll job, in-flight refetches and
// highlight timers. It is safe to call more than once.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub, stop := s.unsubscribe, s.stopPoll
	s.listeners = map[uint64]func(){}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if stop != nil {
		stop()
	}
	s.cancel()
	s.highlights.Stop()
	s.wg.Wait()
}

// OnUpdate registers fn to run after the rendered state changes.
func (s *Syncer) OnUpdate(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Syncer) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// track registers background work unless the syncer is closed.
func (s *Syncer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Syncer) poll() {
	if !s.track() {
		return
	}
	defer s.wg.Done()
	_ = s.Refresh(s.ctx)
}

// Refresh reloads the whole scope.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	issued := s.clock
	s.mu.Unlock()

	details, err := s.opts.Load(ctx)
	if err != nil {
		s.registry.Counter(metrics.RefetchFailures).Inc()
		s.log.Warn("scope reload failed", zap.Error(err))
		return err
	}

	changed, stale := s.applySnapshot(issued, details)
	for _, id := range stale {
		s.spawnRefetch(id, issued)
	}
	if changed {
		s.notify()
	}
	return nil
}

func (s *Syncer) applySnapshot(issued uint64, details []order.OrderDetail) (bool, []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, nil
	}

	changed := false
	seen := make(map[int64]bool, len(details))
	withItems := make(map[int64]bool, len(details))
	for _, d := range details {
		seen[d.ID] = true
		withItems[d.ID] = d.Items != nil
		if s.applyLocked(d, issued) {
			changed = true
		}
	}

	for id := range s.rows {
		if !seen[id] && s.seq[id] <= issued {
			s.removeLocked(id)
			changed = true
		}
	}

	// Expanded rows whose items did not come with the snapshot are refetched,
	// cached or not: item writes leave orders.version untouched.
	var refetch []int64
	for id, open := range s.expanded {
		if open && !withItems[id] {
			if _, ok := s.rows[id]; ok {
				refetch = append(refetch, id)
			}
		}
	}
	return changed, refetch
}

func (s *Syncer) handle(c changefeed.Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.clock++
	token := s.clock
	s.seq[c.OrderID] = token
	delete(s.cached, c.OrderID)
	s.mu.Unlock()

	s.highlights.Flag(Key{Table: changefeed.TableOrders, ID: c.OrderID})
	if c.Table == changefeed.TableOrderItems {
		s.highlights.Flag(Key{Table: changefeed.TableOrderItems, ID: c.ID})
	}

	s.spawnRefetch(c.OrderID, token)
	s.notify()
}

func (s *Syncer) spawnRefetch(orderID int64, token uint64) {
	if !s.track() {
		return
	}
	go func() {
		defer s.wg.Done()
		s.registry.Counter(metrics.RefetchesIssued).Inc()

		d, err := s.opts.Fetcher.GetOrderWithItems(s.ctx, orderID)
		if s.applyRefetch(orderID, token, d, err) {
			s.notify()
		}
	}()
}

func (s *Syncer) applyRefetch(orderID int64, token uint64, d *order.OrderDetail, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if s.seq[orderID] > token {
		s.registry.Counter(metrics.StaleResponsesDropped).Inc()
		s.log.Debug("dropping superseded refetch",
			zap.Int64("order_id", orderID),
			zap.Uint64("issued_at", token),
			zap.Uint64("latest", s.seq[orderID]),
		)
		return false
	}

	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			_, had := s.rows[orderID]
			s.removeLocked(orderID)
			return had
		}
		if s.ctx.Err() == nil {
			s.registry.Counter(metrics.RefetchFailures).Inc()
			s.log.Warn("refetch failed, waiting for next poll", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return false
	}

	return s.applyLocked(*d, token)
}

// applyLocked renders d unless it is older than the current row.
func (s *Syncer) applyLocked(d order.OrderDetail, token uint64) bool {
	id := d.ID
	if s.seq[id] > token {
		s.registry.Counter(metrics.StaleResponsesDropped).Inc()
		return false
	}

	cur, ok := s.rows[id]
	if ok && olderThan(d, cur) {
		s.registry.Counter(metrics.StaleResponsesDropped).Inc()
		return false
	}

	if !s.opts.InScope(d.Order) {
		s.removeLocked(id)
		return ok
	}

	switch {
	case d.Items != nil:
		s.cached[id] = true
	case ok && cur.Items != nil && cur.Version == d.Version && s.cached[id]:
		d.Items = cur.Items
	default:
		delete(s.cached, id)
	}
	s.rows[id] = d
	return true
}

func olderThan(in, cur order.OrderDetail) bool {
	if in.Version != cur.Version {
		return in.Version < cur.Version
	}
	if in.Items != nil && cur.Items != nil {
		return in.Revision() < cur.Revision()
	}
	return false
}

func (s *Syncer) removeLocked(id int64) {
	delete(s.rows, id)
	delete(s.cached, id)
	delete(s.expanded, id)
}

// Expand marks a row as open and returns its items, fetching them on first
// use or after a change notification invalidated the cached copy.
func (s *Syncer) Expand(ctx context.Context, orderID int64) (*order.OrderDetail, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.expanded[orderID] = true
	if d, ok := s.rows[orderID]; ok && s.cached[orderID] && d.Items != nil {
		s.mu.Unlock()
		return &d, nil
	}
	token := s.clock
	s.mu.Unlock()

	s.registry.Counter(metrics.RefetchesIssued).Inc()
	d, err := s.opts.Fetcher.GetOrderWithItems(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			s.applyRefetch(orderID, token, nil, err)
		}
		return nil, err
	}
	if s.applyRefetch(orderID, token, d, nil) {
		s.notify()
	}
	return d, nil
}

func (s *Syncer) Collapse(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expanded, orderID)
}

func (s *Syncer) IsExpanded(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[orderID]
}

// Rows returns a copy of the rendered rows in no particular order.
func (s *Syncer) Rows() []order.OrderDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.OrderDetail, 0, len(s.rows))
	for _, d := range s.rows {
		out = append(out, d)
	}
	return out
}

// Row returns the rendered row for orderID.
func (s *Syncer) Row(orderID int64) (order.OrderDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[orderID]
	return d, ok
}

func (s *Syncer) Highlighted(table string, id int64) bool {
	return s.highlights.Active(Key{Table: table, ID: id})
}
