package projection

import (
	"context"
	"errors"
	"sort"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/order"
)

var ErrTrackerScope = errors.New("tracker needs a phone number or order code")

type TrackedOrder struct {
	order.OrderDetail
	Progress    fulfillment.Progress `json:"progress"`
	Highlighted bool                 `json:"highlighted"`
}

// CustomerTracker follows the orders of one customer, identified by phone
// number or by a single order code.
type CustomerTracker struct {
	*Syncer
	filter order.Filter
}

func NewCustomerTracker(opts Options, phone, code string) (*CustomerTracker, error) {
	if phone == "" && code == "" {
		return nil, ErrTrackerScope
	}
	t := &CustomerTracker{filter: order.Filter{Phone: phone, Code: code}}
	opts.Name = "tracker"
	opts.Load = t.load
	opts.InScope = t.filter.Matches
	t.Syncer = NewSyncer(opts)
	return t, nil
}

func (t *CustomerTracker) load(ctx context.Context) ([]order.OrderDetail, error) {
	return t.opts.Fetcher.ListDetails(ctx, order.Range{}, t.filter)
}

// Orders returns the tracked orders, newest first.
func (t *CustomerTracker) Orders() []TrackedOrder {
	rows := t.Rows()
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})

	out := make([]TrackedOrder, 0, len(rows))
	for _, d := range rows {
		if d.Items == nil {
			d.Items = []order.OrderItem{}
		}
		out = append(out, TrackedOrder{
			OrderDetail: d,
			Progress:    fulfillment.DeriveProgress(d.Items),
			Highlighted: t.Highlighted(changefeed.TableOrders, d.ID),
		})
	}
	return out
}

func (t *CustomerTracker) Snapshot() any {
	return t.Orders()
}
