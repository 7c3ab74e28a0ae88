package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/port"
)

// StockLedger is the sole authority for reading and mutating product stock.
// All operations run against a LedgerTx so the row lock taken by Lock is held
// until the enclosing transaction resolves.
type StockLedger struct {
	log *zap.Logger
}

func NewStockLedger(log *zap.Logger) *StockLedger {
	return &StockLedger{log: log}
}

// Lock acquires the exclusive row lock for the product and returns the stock
// and price as read under that lock. Reading before locking would be a
// lost-update bug; every validation against the product must use the snapshot
// returned here.
func (l *StockLedger) Lock(ctx context.Context, tx port.LedgerTx, productID int64) (*domain.Product, error) {
	return tx.ProductForUpdate(ctx, productID)
}

// Reserve decrements stock by quantity, failing without mutation when the
// locked stock is below quantity.
func (l *StockLedger) Reserve(ctx context.Context, tx port.LedgerTx, product *domain.Product, quantity int) (int, error) {
	return l.Adjust(ctx, tx, product, -quantity)
}

// Release increments stock by quantity. Restoring stock is always valid, so
// it can only fail on infrastructure grounds.
func (l *StockLedger) Release(ctx context.Context, tx port.LedgerTx, product *domain.Product, quantity int) (int, error) {
	return l.Adjust(ctx, tx, product, quantity)
}

// Adjust applies a signed stock delta to the locked product. A negative delta
// is checked against the available stock; the check covers only the
// additional amount, so quantity decreases and releases never fail on
// business grounds.
func (l *StockLedger) Adjust(ctx context.Context, tx port.LedgerTx, product *domain.Product, delta int) (int, error) {
	if delta == 0 {
		return product.Stock, nil
	}
	if delta < 0 && product.Stock < -delta {
		return 0, &domain.InsufficientStockError{
			ProductID: product.ID,
			Requested: -delta,
			Available: product.Stock,
		}
	}

	newStock, err := tx.ApplyStockDelta(ctx, product.ID, delta)
	if err != nil {
		return 0, err
	}

	l.log.Debug("stock adjusted",
		zap.Int64("product_id", product.ID),
		zap.Int("delta", delta),
		zap.Int("new_stock", newStock),
	)

	product.Stock = newStock
	return newStock, nil
}
