package service

import (
	"github.com/shopspring/decimal"

	"github.com/vhoang/orderledger/internal/core/domain"
)

// PriceGuard rejects order lines whose claimed unit price does not exactly
// match the product's current price. It must be given the snapshot read under
// the row lock, never a separately queried product, so a concurrent price
// change cannot slip in between validation and reservation.
type PriceGuard struct{}

func (PriceGuard) Validate(product *domain.Product, claimed decimal.Decimal) error {
	if !claimed.Equal(product.Price) {
		return &domain.PriceMismatchError{
			ProductID: product.ID,
			Expected:  product.Price,
			Got:       claimed,
		}
	}
	return nil
}
