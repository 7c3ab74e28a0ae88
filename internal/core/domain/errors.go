package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrLineNotFound    = errors.New("order line not found")

	// ErrLockTimeout means the per-product row lock could not be acquired
	// within the configured wait. No mutation happened; the caller may retry.
	ErrLockTimeout = errors.New("lock wait timeout")
)

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type PriceMismatchError struct {
	ProductID int64
	Expected  decimal.Decimal
	Got       decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch for product %d: expected %s, got %s",
		e.ProductID, e.Expected, e.Got)
}

type RateExceededError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: maximum %d requests per %s", e.Limit, e.RetryAfter)
}
