package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is one line item of an order. Price is the unit price captured at
// creation time; it must equal the product's price at that moment.
type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
