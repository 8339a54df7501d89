package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"orderflow-be/internal/order"
)

const (
	topProductLimit = 5
	peakHourLimit   = 3

	// PlaceholderPrepMinutes is reported when no order has a completion time.
	PlaceholderPrepMinutes = 15.0
)

// ApplyFilters keeps only lines of the given category. Each surviving
// order's amount becomes the sum of its matching lines; orders with no
// matching line are dropped.
func ApplyFilters(orders []OrderRecord, category string) []OrderRecord {
	if category == "" {
		return orders
	}

	out := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		var (
			lines  []Line
			amount float64
		)
		for _, l := range o.Lines {
			if strings.EqualFold(l.Category, category) {
				lines = append(lines, l)
				amount += l.Revenue()
			}
		}
		if len(lines) == 0 {
			continue
		}
		o.Lines = lines
		o.Amount = amount
		out = append(out, o)
	}
	return out
}

func completedOnly(orders []OrderRecord) []OrderRecord {
	out := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		if o.Status == order.StatusCompleted {
			out = append(out, o)
		}
	}
	return out
}

// RankProducts groups lines by product name and ranks them by revenue,
// highest first. Ties are broken by name.
func RankProducts(orders []OrderRecord) []ProductSales {
	idx := make(map[string]int)
	products := []ProductSales{}
	for _, o := range orders {
		for _, l := range o.Lines {
			i, ok := idx[l.Product]
			if !ok {
				i = len(products)
				idx[l.Product] = i
				products = append(products, ProductSales{Name: l.Product, Category: l.Category})
			}
			products[i].Quantity += l.Quantity
			products[i].Revenue += l.Revenue()
		}
	}

	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Revenue != products[j].Revenue {
			return products[i].Revenue > products[j].Revenue
		}
		return products[i].Name < products[j].Name
	})
	return products
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d", h)
}

// ComputeSales summarizes the completed orders in the snapshot.
func ComputeSales(orders []OrderRecord, loc *time.Location) SalesData {
	if loc == nil {
		loc = time.UTC
	}
	done := completedOnly(orders)

	data := SalesData{
		TopProducts:     []ProductSales{},
		HourlyBreakdown: make([]Bucket, 24),
		DailyTrend:      []Bucket{},
	}
	for h := range data.HourlyBreakdown {
		data.HourlyBreakdown[h].Label = hourLabel(h)
	}

	days := make(map[string]int)
	for _, o := range done {
		data.TotalRevenue += o.Amount
		data.TotalOrders++

		at := o.CreatedAt.In(loc)
		hb := &data.HourlyBreakdown[at.Hour()]
		hb.Orders++
		hb.Revenue += o.Amount

		day := at.Format("2006-01-02")
		i, ok := days[day]
		if !ok {
			i = len(data.DailyTrend)
			days[day] = i
			data.DailyTrend = append(data.DailyTrend, Bucket{Label: day})
		}
		data.DailyTrend[i].Orders++
		data.DailyTrend[i].Revenue += o.Amount
	}
	sort.Slice(data.DailyTrend, func(i, j int) bool {
		return data.DailyTrend[i].Label < data.DailyTrend[j].Label
	})

	if data.TotalOrders > 0 {
		data.AverageOrderValue = data.TotalRevenue / float64(data.TotalOrders)
	}

	for i, p := range RankProducts(done) {
		if i == topProductLimit {
			break
		}
		if data.TotalRevenue > 0 {
			p.Percentage = p.Revenue / data.TotalRevenue * 100
		}
		data.TopProducts = append(data.TopProducts, p)
	}
	return data
}

// ComputeOperational summarizes every order in the snapshot, whatever its
// status.
func ComputeOperational(orders []OrderRecord, loc *time.Location) OperationalData {
	if loc == nil {
		loc = time.UTC
	}

	data := OperationalData{PeakHours: []string{}}
	var (
		perHour   [24]int
		prepTotal float64
		prepCount int
	)
	for _, o := range orders {
		data.TotalOrders++
		switch {
		case o.Status == order.StatusCompleted:
			data.CompletedOrders++
			perHour[o.CreatedAt.In(loc).Hour()]++
			if o.CompletedAt != nil && !o.CompletedAt.Before(o.CreatedAt) {
				prepTotal += o.CompletedAt.Sub(o.CreatedAt).Minutes()
				prepCount++
			}
		case o.Status.InFlight():
			data.PendingOrders++
		}
	}

	if data.TotalOrders > 0 {
		data.CompletionRate = float64(data.CompletedOrders) / float64(data.TotalOrders) * 100
	}

	hours := make([]int, 0, 24)
	for h, n := range perHour {
		if n > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return perHour[hours[i]] > perHour[hours[j]]
	})
	for i, h := range hours {
		if i == peakHourLimit {
			break
		}
		data.PeakHours = append(data.PeakHours, hourLabel(h))
	}

	if prepCount > 0 {
		data.AveragePreparationTime = roundFloat(prepTotal/float64(prepCount), 2)
		data.PreparationTimeMeasured = true
	} else {
		data.AveragePreparationTime = PlaceholderPrepMinutes
	}
	return data
}

func ComputeFeedback(records []FeedbackRecord) FeedbackData {
	data := FeedbackData{Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	sum := 0
	for _, r := range records {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		data.Count++
		data.Distribution[r.Rating]++
		sum += r.Rating
	}
	if data.Count > 0 {
		data.AverageRating = roundFloat(float64(sum)/float64(data.Count), 2)
	}
	return data
}

func roundFloat(val float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(val*p) / p
}
