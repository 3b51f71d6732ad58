package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned on a unique constraint violation
	ErrDuplicate = errors.New("already exists")
	// ErrCartChanged is returned when a cart line moved while an order was being placed
	ErrCartChanged = errors.New("cart changed during checkout")
)

// StockConflict aborts order placement when a product no longer has enough stock
type StockConflict struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockConflict) Error() string {
	return fmt.Sprintf("stock conflict for product %d (%s): requested=%d, available=%d",
		e.ProductID, e.ProductName, e.Requested, e.Available)
}
