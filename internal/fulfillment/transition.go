package fulfillment

import "orderflow-be/internal/order"

// allowed maps each status to the statuses a request may move it to.
// Self-edges are idempotent no-ops.
var allowed = map[order.ItemStatus][]order.ItemStatus{
	order.ItemNotStarted:       {order.ItemStarted},
	order.ItemStarted:          {order.ItemStarted, order.ItemFinished},
	order.ItemFinished:         {order.ItemFinished, order.ItemReadyForHandOver},
	order.ItemReadyForHandOver: {order.ItemReadyForHandOver},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to order.ItemStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the status one rank above s, or false at the terminal status.
func Next(s order.ItemStatus) (order.ItemStatus, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(order.ItemStatuses) {
		return "", false
	}
	return order.ItemStatuses[r+1], true
}

// AvailableActions lists the forward moves a UI may offer for s.
func AvailableActions(s order.ItemStatus) []order.ItemStatus {
	var out []order.ItemStatus
	for _, to := range allowed[s] {
		if to != s {
			out = append(out, to)
		}
	}
	return out
}
