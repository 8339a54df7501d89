package projection

import (
	"context"
	"sort"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/order"
)

type KitchenTicket struct {
	order.OrderDetail
	Progress    fulfillment.Progress `json:"progress"`
	Highlighted bool                 `json:"highlighted"`
	// Changed holds the ids of items flagged within the highlight window.
	Changed []int64 `json:"changedItems"`
}

type KitchenSnapshot struct {
	NotStarted []KitchenTicket `json:"notStarted"`
	InProgress []KitchenTicket `json:"inProgress"`
	Ready      []KitchenTicket `json:"ready"`
}

// KitchenBoard shows every in-flight order with its items, grouped by how
// far along the items are.
type KitchenBoard struct {
	*Syncer
	rng order.Range
}

func NewKitchenBoard(opts Options, rng order.Range) *KitchenBoard {
	b := &KitchenBoard{rng: rng}
	opts.Name = "kitchen"
	opts.Load = b.load
	opts.InScope = b.inScope
	b.Syncer = NewSyncer(opts)
	return b
}

func (b *KitchenBoard) load(ctx context.Context) ([]order.OrderDetail, error) {
	return b.opts.Fetcher.ListDetails(ctx, b.rng, order.Filter{Statuses: order.InFlightStatuses})
}

func (b *KitchenBoard) inScope(o order.Order) bool {
	return o.Status.InFlight() && b.rng.Contains(o.CreatedAt)
}

func (b *KitchenBoard) Board() KitchenSnapshot {
	rows := b.Rows()
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	snap := KitchenSnapshot{
		NotStarted: []KitchenTicket{},
		InProgress: []KitchenTicket{},
		Ready:      []KitchenTicket{},
	}
	for _, d := range rows {
		if d.Items == nil {
			d.Items = []order.OrderItem{}
		}
		t := KitchenTicket{
			OrderDetail: d,
			Progress:    fulfillment.DeriveProgress(d.Items),
			Highlighted: b.Highlighted(changefeed.TableOrders, d.ID),
			Changed:     []int64{},
		}
		for _, it := range d.Items {
			if b.Highlighted(changefeed.TableOrderItems, it.ID) {
				t.Changed = append(t.Changed, it.ID)
			}
		}

		switch t.Progress.State {
		case fulfillment.ProgressComplete:
			snap.Ready = append(snap.Ready, t)
		case fulfillment.ProgressInProgress:
			snap.InProgress = append(snap.InProgress, t)
		default:
			snap.NotStarted = append(snap.NotStarted, t)
		}
	}
	return snap
}

func (b *KitchenBoard) Snapshot() any {
	return b.Board()
}
