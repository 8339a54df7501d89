package menu

import "errors"

var ErrMenuItemNotFound = errors.New("menu item not found")

type MenuItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}
