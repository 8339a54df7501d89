package fulfillment

import "orderflow-be/internal/order"

type ProgressState string

const (
	ProgressNotStarted ProgressState = "Not Started"
	ProgressInProgress ProgressState = "In Progress"
	ProgressComplete   ProgressState = "Complete"
)

type Progress struct {
	State   ProgressState `json:"state"`
	Percent int           `json:"percent"`
	Ready   int           `json:"ready"`
	Total   int           `json:"total"`
}

// DeriveProgress computes the recommended aggregate for an order from its
// items. It never writes the order status.
func DeriveProgress(items []order.OrderItem) Progress {
	p := Progress{State: ProgressNotStarted, Total: len(items)}
	if len(items) == 0 {
		return p
	}

	terminal := len(order.ItemStatuses) - 1
	minRank, maxRank, sum := terminal, 0, 0
	for _, it := range items {
		r := it.Status.Rank()
		if r < 0 {
			r = 0
		}
		if r < minRank {
			minRank = r
		}
		if r > maxRank {
			maxRank = r
		}
		if r == terminal {
			p.Ready++
		}
		sum += r
	}

	switch {
	case minRank == terminal:
		p.State = ProgressComplete
	case maxRank > 0:
		p.State = ProgressInProgress
	}
	p.Percent = sum * 100 / (terminal * len(items))
	return p
}
