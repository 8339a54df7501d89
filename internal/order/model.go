package order

import (
	"strings"
	"time"
)

// ItemStatus is the fulfillment marker of a single order line.
type ItemStatus string

const (
	ItemNotStarted       ItemStatus = "Not Started"
	ItemStarted          ItemStatus = "Started"
	ItemFinished         ItemStatus = "Finished"
	ItemReadyForHandOver ItemStatus = "Ready for Hand Over"
)

var itemStatusRank = map[ItemStatus]int{
	ItemNotStarted:       0,
	ItemStarted:          1,
	ItemFinished:         2,
	ItemReadyForHandOver: 3,
}

// ItemStatuses lists every item status in rank order.
var ItemStatuses = []ItemStatus{ItemNotStarted, ItemStarted, ItemFinished, ItemReadyForHandOver}

// Rank returns the position of s in the fulfillment order, or -1 if s is unknown.
func (s ItemStatus) Rank() int {
	if r, ok := itemStatusRank[s]; ok {
		return r
	}
	return -1
}

func (s ItemStatus) Valid() bool {
	_, ok := itemStatusRank[s]
	return ok
}

// OrderStatus is stored independently of the item statuses.
type OrderStatus string

const (
	StatusPending     OrderStatus = "Pending"
	StatusAccepted    OrderStatus = "Accepted"
	StatusPreparing   OrderStatus = "Preparing"
	StatusReadyToPick OrderStatus = "Ready To Pick"
	StatusCompleted   OrderStatus = "Completed"
	StatusCancelled   OrderStatus = "Cancelled"
)

var InFlightStatuses = []OrderStatus{StatusPending, StatusAccepted, StatusPreparing, StatusReadyToPick}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReadyToPick, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) InFlight() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReadyToPick:
		return true
	}
	return false
}

func (s OrderStatus) Closed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type CustomerBadge string

const (
	BadgeNew      CustomerBadge = "New"
	BadgePeriodic CustomerBadge = "Periodic"
	BadgeFrequent CustomerBadge = "Frequent"
)

// BadgeFor resolves the customer badge from the number of earlier orders
// placed with the same phone number.
func BadgeFor(priorOrders int) CustomerBadge {
	switch {
	case priorOrders <= 0:
		return BadgeNew
	case priorOrders < 5:
		return BadgePeriodic
	default:
		return BadgeFrequent
	}
}

type Order struct {
	ID           int64         `json:"id"`
	Code         string        `json:"orderCode"`
	CustomerName string        `json:"customerName"`
	PhoneNumber  string        `json:"phoneNumber"`
	DOB          *time.Time    `json:"dob,omitempty"`
	Badge        CustomerBadge `json:"customerBadge"`
	Amount       float64       `json:"amount"`
	Status       OrderStatus   `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	UserID       *int64        `json:"userId,omitempty"`
	Version      int64         `json:"version"`
}

type OrderItem struct {
	ID         int64      `json:"id"`
	OrderID    int64      `json:"orderId"`
	MenuItemID int64      `json:"menuItemId"`
	Quantity   int        `json:"quantity"`
	Status     ItemStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Version    int64      `json:"version"`

	// Joined from menu_items.
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Category  string  `json:"category"`
}

// OrderDetail is an order joined with its items and their menu names.
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

// Revision sums the order version with every item version. It only grows
// as the order or any of its items is written.
func (d OrderDetail) Revision() int64 {
	rev := d.Order.Version
	for _, it := range d.Items {
		rev += it.Version
	}
	return rev
}

type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range. Zero bounds are open.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

type Filter struct {
	Statuses []OrderStatus
	Search   string
	Phone    string
	Code     string
	UserID   *int64
}

// Matches applies the filter to an order in memory, mirroring the SQL
// built by the repository.
func (f Filter) Matches(o Order) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == o.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Phone != "" && o.PhoneNumber != f.Phone {
		return false
	}
	if f.Code != "" && o.Code != f.Code {
		return false
	}
	if f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.Code), needle) &&
			!strings.Contains(strings.ToLower(o.CustomerName), needle) &&
			!strings.Contains(o.PhoneNumber, needle) {
			return false
		}
	}
	return true
}

type NewOrderItem struct {
	MenuItemID int64 `json:"menuItemId" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

type NewOrder struct {
	CustomerName string         `json:"customerName" validate:"required,max=120"`
	PhoneNumber  string         `json:"phoneNumber" validate:"required,min=6,max=20"`
	DOB          *time.Time     `json:"dob"`
	UserID       *int64         `json:"userId"`
	Items        []NewOrderItem `json:"items" validate:"required,min=1,dive"`
}
