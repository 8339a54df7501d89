package projection

import (
	"context"
	"sort"
	"strings"
	"sync"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/order"
)

const (
	SortCreatedAt = "created_at"
	SortAmount    = "amount"
	SortCustomer  = "customer"
	SortStatus    = "status"

	defaultPageSize = 20
)

type StaffQuery struct {
	Range    order.Range
	Filter   order.Filter
	SortBy   string
	Desc     bool
	Page     int
	PageSize int
}

type StaffRow struct {
	order.Order
	Highlighted bool                  `json:"highlighted"`
	Expanded    bool                  `json:"expanded"`
	Items       []StaffItem           `json:"items,omitempty"`
	Progress    *fulfillment.Progress `json:"progress,omitempty"`
}

type StaffItem struct {
	order.OrderItem
	Highlighted bool `json:"highlighted"`
}

type StaffPage struct {
	Rows     []StaffRow `json:"rows"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// StaffBoard is the order management table. Rows are loaded without items;
// items are fetched when a row is expanded.
type StaffBoard struct {
	*Syncer

	mu    sync.RWMutex
	query StaffQuery
}

func NewStaffBoard(opts Options, query StaffQuery) *StaffBoard {
	b := &StaffBoard{query: normalizeQuery(query)}
	opts.Name = "staff"
	opts.Load = b.load
	opts.InScope = b.inScope
	b.Syncer = NewSyncer(opts)
	return b
}

func normalizeQuery(q StaffQuery) StaffQuery {
	switch q.SortBy {
	case SortCreatedAt, SortAmount, SortCustomer, SortStatus:
	default:
		q.SortBy = SortCreatedAt
		q.Desc = true
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	return q
}

func (b *StaffBoard) Query() StaffQuery {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.query
}

// SetView changes the range, filter, sort or page and reloads the scope.
func (b *StaffBoard) SetView(ctx context.Context, q StaffQuery) error {
	b.mu.Lock()
	b.query = normalizeQuery(q)
	b.mu.Unlock()
	return b.Refresh(ctx)
}

func (b *StaffBoard) load(ctx context.Context) ([]order.OrderDetail, error) {
	q := b.Query()
	orders, err := b.opts.Fetcher.GetOrdersInRange(ctx, q.Range, q.Filter)
	if err != nil {
		return nil, err
	}
	out := make([]order.OrderDetail, len(orders))
	for i, o := range orders {
		out[i] = order.OrderDetail{Order: o}
	}
	return out, nil
}

func (b *StaffBoard) inScope(o order.Order) bool {
	q := b.Query()
	return q.Range.Contains(o.CreatedAt) && q.Filter.Matches(o)
}

// Page returns the sorted, paginated rows for the current query.
func (b *StaffBoard) Page() StaffPage {
	q := b.Query()
	rows := b.Rows()
	sortDetails(rows, q.SortBy, q.Desc)

	start := (q.Page - 1) * q.PageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + q.PageSize
	if end > len(rows) {
		end = len(rows)
	}

	page := StaffPage{Rows: []StaffRow{}, Total: len(rows), Page: q.Page, PageSize: q.PageSize}
	for _, d := range rows[start:end] {
		row := StaffRow{
			Order:       d.Order,
			Highlighted: b.Highlighted(changefeed.TableOrders, d.ID),
			Expanded:    b.IsExpanded(d.ID),
		}
		if row.Expanded && d.Items != nil {
			row.Items = make([]StaffItem, len(d.Items))
			for i, it := range d.Items {
				row.Items[i] = StaffItem{OrderItem: it, Highlighted: b.Highlighted(changefeed.TableOrderItems, it.ID)}
			}
			p := fulfillment.DeriveProgress(d.Items)
			row.Progress = &p
		}
		page.Rows = append(page.Rows, row)
	}
	return page
}

func (b *StaffBoard) Snapshot() any {
	return b.Page()
}

func sortDetails(rows []order.OrderDetail, by string, desc bool) {
	less := func(a, c order.OrderDetail) bool {
		switch by {
		case SortAmount:
			if a.Amount != c.Amount {
				return a.Amount < c.Amount
			}
		case SortCustomer:
			an, cn := strings.ToLower(a.CustomerName), strings.ToLower(c.CustomerName)
			if an != cn {
				return an < cn
			}
		case SortStatus:
			if a.Status != c.Status {
				return a.Status < c.Status
			}
		}
		if !a.CreatedAt.Equal(c.CreatedAt) {
			return a.CreatedAt.Before(c.CreatedAt)
		}
		return a.ID < c.ID
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}
