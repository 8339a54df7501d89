package fulfillment

import (
	"errors"

	"orderflow-be/internal/order"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrNotFound         = order.ErrItemNotFound
	ErrStaleState       = order.ErrStaleState
	ErrStoreUnavailable = order.ErrStoreUnavailable
)
