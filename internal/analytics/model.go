package analytics

import (
	"errors"
	"time"

	"orderflow-be/internal/order"
)

var ErrConfiguration = errors.New("invalid report configuration")

// Request scopes a report. The date range is mandatory.
type Request struct {
	From     *time.Time `json:"from" validate:"required"`
	To       *time.Time `json:"to" validate:"required"`
	Category string     `json:"category,omitempty"`
	StaffID  *int64     `json:"staffId,omitempty"`
}

func (r Request) Range() order.Range {
	var rng order.Range
	if r.From != nil {
		rng.From = *r.From
	}
	if r.To != nil {
		rng.To = *r.To
	}
	return rng
}

type Line struct {
	Product   string
	Category  string
	Quantity  int
	UnitPrice float64
}

func (l Line) Revenue() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

// OrderRecord is the slice of an order the aggregations read.
type OrderRecord struct {
	ID          int64
	Code        string
	Amount      float64
	Status      order.OrderStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	UserID      *int64
	Lines       []Line
}

type FeedbackRecord struct {
	ID        int64
	OrderID   int64
	Rating    int
	Comment   string
	CreatedAt time.Time
}

type ProductSales struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Quantity   int     `json:"quantity"`
	Revenue    float64 `json:"revenue"`
	Percentage float64 `json:"percentage"`
}

// Bucket aggregates orders under a label: an hour "00".."23" or a date
// "YYYY-MM-DD".
type Bucket struct {
	Label   string  `json:"label"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type SalesData struct {
	TotalRevenue      float64        `json:"totalRevenue"`
	TotalOrders       int            `json:"totalOrders"`
	AverageOrderValue float64        `json:"averageOrderValue"`
	TopProducts       []ProductSales `json:"topProducts"`
	HourlyBreakdown   []Bucket       `json:"hourlyBreakdown"`
	DailyTrend        []Bucket       `json:"dailyTrend"`
}

type OperationalData struct {
	TotalOrders     int      `json:"totalOrders"`
	CompletedOrders int      `json:"completedOrders"`
	CompletionRate  float64  `json:"completionRate"`
	PendingOrders   int      `json:"pendingOrders"`
	PeakHours       []string `json:"peakHours"`

	// AveragePreparationTime is in minutes. When no completed order carries
	// a completion time it holds the placeholder and Measured is false.
	AveragePreparationTime  float64 `json:"averagePreparationTime"`
	PreparationTimeMeasured bool    `json:"preparationTimeMeasured"`
}

type FeedbackData struct {
	Count         int         `json:"count"`
	AverageRating float64     `json:"averageRating"`
	Distribution  map[int]int `json:"distribution"`
}

type Insight struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SectionState string

const (
	StateLoading SectionState = "loading"
	StateOK      SectionState = "ok"
	StateError   SectionState = "error"
)

// Section carries one independently fetched part of a report.
type Section[T any] struct {
	State SectionState `json:"state"`
	Data  *T           `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

func Loading[T any]() Section[T] {
	return Section[T]{State: StateLoading}
}

func sectionOf[T any](data *T, err error) Section[T] {
	if err != nil {
		return Section[T]{State: StateError, Error: err.Error()}
	}
	return Section[T]{State: StateOK, Data: data}
}

type Report struct {
	From        time.Time                `json:"from"`
	To          time.Time                `json:"to"`
	Category    string                   `json:"category,omitempty"`
	StaffID     *int64                   `json:"staffId,omitempty"`
	Sales       Section[SalesData]       `json:"sales"`
	Operational Section[OperationalData] `json:"operational"`
	Feedback    Section[FeedbackData]    `json:"feedback"`
	Insights    []Insight                `json:"insights"`
	GeneratedAt time.Time                `json:"generatedAt"`
}
