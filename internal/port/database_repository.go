package port

import (
	"context"

	"github.com/vhoang/orderledger/internal/core/domain"
)

// LedgerStore is the transactional backing store for products and order lines.
type LedgerStore interface {
	// WithinTx runs fn inside a single transaction. Row locks taken through
	// the LedgerTx are held until fn returns; the transaction commits when fn
	// returns nil and rolls back otherwise, so no partial effects are ever
	// visible outside fn.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetProduct is an unlocked read for the read-through cache path.
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
}

// LedgerTx is the set of operations available inside one transaction.
type LedgerTx interface {
	// ProductForUpdate reads the product row under an exclusive row lock
	// (SELECT ... FOR UPDATE). The lock is held until the transaction ends.
	ProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error)

	// ApplyStockDelta adds delta (signed) to the product's stock and returns
	// the new value. Callers must hold the row lock via ProductForUpdate.
	ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error)

	OrderExists(ctx context.Context, orderID int64) (bool, error)

	GetLine(ctx context.Context, lineID int64) (*domain.OrderLine, error)
	InsertLine(ctx context.Context, line *domain.OrderLine) (int64, error)
	UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) error
	DeleteLine(ctx context.Context, lineID int64) error
}
