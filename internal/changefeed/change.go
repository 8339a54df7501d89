package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TableOrders     = "orders"
	TableOrderItems = "order_items"
)

// Tables lists every table the feed carries.
var Tables = []string{TableOrders, TableOrderItems}

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

var ErrInvalidChange = errors.New("invalid change payload")

// Change is a single row-level notification. For rows of the orders table
// OrderID equals ID.
type Change struct {
	MessageID string    `json:"message_id,omitempty"`
	Table     string    `json:"table"`
	Op        Op        `json:"op"`
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Version   int64     `json:"version"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	At        time.Time `json:"at"`
}

func (c Change) Validate() error {
	switch c.Table {
	case TableOrders, TableOrderItems:
	default:
		return fmt.Errorf("%w: unknown table %q", ErrInvalidChange, c.Table)
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidChange, c.Op)
	}
	if c.ID <= 0 {
		return fmt.Errorf("%w: missing row id", ErrInvalidChange)
	}
	if c.Table == TableOrderItems && c.OrderID <= 0 {
		return fmt.Errorf("%w: item change without order id", ErrInvalidChange)
	}
	return nil
}

func Encode(c Change) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a payload produced by Encode or by the database triggers.
func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if c.Table == TableOrders && c.OrderID == 0 {
		c.OrderID = c.ID
	}
	if err := c.Validate(); err != nil {
		return Change{}, err
	}
	return c, nil
}
