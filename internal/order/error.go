package order

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrItemNotFound       = errors.New("order item not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrStaleState         = errors.New("stale state: row was modified concurrently")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrOrderClosed        = errors.New("order is already closed")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrUnknownMenuItem    = errors.New("unknown menu item")
)
