package service

import (
	"errors"
	"fmt"

	"storefront/internal/store"
)

var (
	ErrNoOwner              = errors.New("cart requires a user or a session")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNotFound             = store.ErrNotFound
	ErrOrderNumberCollision = errors.New("could not allocate a unique order number")
	ErrIllegalTransition    = errors.New("illegal order status transition")
	ErrCheckoutInProgress   = errors.New("checkout already in progress for this cart")
	ErrCartChanged          = store.ErrCartChanged
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrEmailTaken           = errors.New("email address is already registered")
	ErrUsernameTaken        = errors.New("username is already taken")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrAlreadyReviewed      = errors.New("you have already reviewed this product")
)

// ValidationError reports bad input in a request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError rejects a cart change exceeding the stock on hand
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d units of %s available, requested %d", e.Available, e.ProductName, e.Requested)
}

// StockConflictError aborts checkout when a cart line exceeds the stock on hand
type StockConflictError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("Sorry, only %d units of %s are available", e.Available, e.ProductName)
}
