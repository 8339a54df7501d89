package projection

import (
	"context"
	"fmt"
	"time"

	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"
)

// View is a live projection that can be streamed to a client.
type View interface {
	Start(ctx context.Context) error
	Snapshot() any
	OnUpdate(fn func()) func()
	Close()
}

const (
	KindStaff   = "staff"
	KindKitchen = "kitchen"
	KindTracker = "tracker"
)

type Params struct {
	Staff StaffQuery
	// Kitchen is the creation range of orders on the kitchen board.
	Kitchen order.Range
	Phone   string
	Code    string
}

// Factory builds views that share one fetcher, change feed and poller.
type Factory struct {
	Fetcher         Fetcher
	Feed            Subscriber
	Poller          Poller
	PollInterval    time.Duration
	HighlightWindow time.Duration
	Registry        *metrics.Registry
}

func (f *Factory) options() Options {
	return Options{
		Fetcher:         f.Fetcher,
		Feed:            f.Feed,
		Poller:          f.Poller,
		PollInterval:    f.PollInterval,
		HighlightWindow: f.HighlightWindow,
		Registry:        f.Registry,
	}
}

func (f *Factory) Staff(q StaffQuery) *StaffBoard {
	return NewStaffBoard(f.options(), q)
}

func (f *Factory) Kitchen(rng order.Range) *KitchenBoard {
	return NewKitchenBoard(f.options(), rng)
}

func (f *Factory) Tracker(phone, code string) (*CustomerTracker, error) {
	return NewCustomerTracker(f.options(), phone, code)
}

// New builds a view by kind. The view is not started.
func (f *Factory) New(kind string, p Params) (View, error) {
	switch kind {
	case KindStaff:
		return f.Staff(p.Staff), nil
	case KindKitchen:
		return f.Kitchen(p.Kitchen), nil
	case KindTracker:
		return f.Tracker(p.Phone, p.Code)
	default:
		return nil, fmt.Errorf("unknown view kind %q", kind)
	}
}
