package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/port"
)

// ProductCatalog serves product reads through the cache. It is the reader the
// invalidator keeps honest: after a committed stock mutation the cached entry
// is gone, so the next read re-derives it from the store.
type ProductCatalog struct {
	store port.LedgerStore
	cache port.CacheRepository
	ttl   time.Duration
	log   *zap.Logger
}

func NewProductCatalog(store port.LedgerStore, cache port.CacheRepository, ttl time.Duration, log *zap.Logger) *ProductCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductCatalog{store: store, cache: cache, ttl: ttl, log: log}
}

type cachedProduct struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Stock      int    `json:"stock"`
	CategoryID int64  `json:"category_id"`
}

func (c *ProductCatalog) Get(ctx context.Context, productID int64) (*domain.Product, error) {
	key := ProductCacheKey(productID)

	if raw, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if raw != nil {
		var cp cachedProduct
		if err := json.Unmarshal(raw, &cp); err == nil {
			if price, perr := decimal.NewFromString(cp.Price); perr == nil {
				return &domain.Product{
					ID:         cp.ID,
					Name:       cp.Name,
					Price:      price,
					Stock:      cp.Stock,
					CategoryID: cp.CategoryID,
				}, nil
			}
		}
		// Corrupt entry; fall through to the store.
		c.log.Warn("dropping unreadable cache entry", zap.String("key", key))
	}

	product, err := c.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	raw, err := json.Marshal(cachedProduct{
		ID:         product.ID,
		Name:       product.Name,
		Price:      product.Price.String(),
		Stock:      product.Stock,
		CategoryID: product.CategoryID,
	})
	if err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.log.Warn("cache fill failed", zap.String("key", key), zap.Error(err))
		}
	}

	return product, nil
}
