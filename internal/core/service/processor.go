package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/metrics"
	"github.com/vhoang/orderledger/internal/port"
)

// OrderLineProcessor orchestrates the full lifecycle of one order line
// mutation as a single transaction: lock the product row, validate the price
// against the locked snapshot, apply the stock delta, persist the line,
// commit. Cache invalidation runs after commit and before the success result
// is returned, and never fails the operation.
//
// Retrying a create that actually succeeded will create a second line and a
// second reservation; there is no idempotency-key deduplication here.
type OrderLineProcessor struct {
	store       port.LedgerStore
	ledger      *StockLedger
	guard       PriceGuard
	invalidator *CacheInvalidator
	log         *zap.Logger
	rec         *metrics.Recorder
}

func NewOrderLineProcessor(store port.LedgerStore, ledger *StockLedger, invalidator *CacheInvalidator, log *zap.Logger, rec *metrics.Recorder) *OrderLineProcessor {
	return &OrderLineProcessor{
		store:       store,
		ledger:      ledger,
		invalidator: invalidator,
		log:         log,
		rec:         rec,
	}
}

type CreateLineInput struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateLine reserves stock for a new line and persists it atomically.
func (p *OrderLineProcessor) CreateLine(ctx context.Context, in CreateLineInput) (*domain.OrderLine, error) {
	var line *domain.OrderLine

	err := p.store.WithinTx(ctx, func(tx port.LedgerTx) error {
		ok, err := tx.OrderExists(ctx, in.OrderID)
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !ok {
			return domain.ErrOrderNotFound
		}

		product, err := p.ledger.Lock(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}

		if err := p.guard.Validate(product, in.UnitPrice); err != nil {
			return err
		}

		if _, err := p.ledger.Reserve(ctx, tx, product, in.Quantity); err != nil {
			return err
		}

		now := time.Now()
		line = &domain.OrderLine{
			OrderID:   in.OrderID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Price:     in.UnitPrice,
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := tx.InsertLine(ctx, line)
		if err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
		line.ID = id
		return nil
	})
	if err != nil {
		p.rec.LineOp("create", outcomeFor(err))
		return nil, err
	}

	p.rec.LineOp("create", metrics.OutcomeCommitted)
	p.log.Info("order line created",
		zap.Int64("line_id", line.ID),
		zap.Int64("product_id", in.ProductID),
		zap.Int("quantity", in.Quantity),
	)
	p.invalidator.ProductChanged(in.ProductID)

	return line, nil
}

// UpdateQuantity changes an existing line's quantity, applying the signed
// stock delta in one adjust call so no intermediate stock value is ever
// visible to a concurrent reader.
func (p *OrderLineProcessor) UpdateQuantity(ctx context.Context, lineID int64, newQuantity int) (*domain.OrderLine, error) {
	var (
		line      *domain.OrderLine
		productID int64
	)

	err := p.store.WithinTx(ctx, func(tx port.LedgerTx) error {
		var err error
		line, err = tx.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if line == nil {
			return domain.ErrLineNotFound
		}
		productID = line.ProductID

		if newQuantity == line.Quantity {
			return nil
		}

		product, err := p.ledger.Lock(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}

		// Increasing the quantity reserves the difference; decreasing
		// releases it. The insufficient-stock check applies to the
		// additional amount only.
		if _, err := p.ledger.Adjust(ctx, tx, product, line.Quantity-newQuantity); err != nil {
			return err
		}

		if err := tx.UpdateLineQuantity(ctx, lineID, newQuantity); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		line.Quantity = newQuantity
		return nil
	})
	if err != nil {
		p.rec.LineOp("update", outcomeFor(err))
		return nil, err
	}

	p.rec.LineOp("update", metrics.OutcomeCommitted)
	p.log.Info("order line updated",
		zap.Int64("line_id", lineID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", newQuantity),
	)
	p.invalidator.ProductChanged(productID)

	return line, nil
}

// DeleteLine removes a line and releases its full reserved quantity back to
// stock. The release cannot be rejected on business grounds.
func (p *OrderLineProcessor) DeleteLine(ctx context.Context, lineID int64) error {
	var productID int64

	err := p.store.WithinTx(ctx, func(tx port.LedgerTx) error {
		line, err := tx.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if line == nil {
			return domain.ErrLineNotFound
		}
		productID = line.ProductID

		product, err := p.ledger.Lock(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}

		if _, err := p.ledger.Release(ctx, tx, product, line.Quantity); err != nil {
			return err
		}

		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
		return nil
	})
	if err != nil {
		p.rec.LineOp("delete", outcomeFor(err))
		return err
	}

	p.rec.LineOp("delete", metrics.OutcomeCommitted)
	p.log.Info("order line deleted",
		zap.Int64("line_id", lineID),
		zap.Int64("product_id", productID),
	)
	p.invalidator.ProductChanged(productID)

	return nil
}

func outcomeFor(err error) string {
	var stockErr *domain.InsufficientStockError
	var priceErr *domain.PriceMismatchError
	switch {
	case errors.As(err, &stockErr):
		return metrics.OutcomeInsufficientStock
	case errors.As(err, &priceErr):
		return metrics.OutcomePriceMismatch
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrLineNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrLockTimeout):
		return metrics.OutcomeLockTimeout
	default:
		return metrics.OutcomeError
	}
}
