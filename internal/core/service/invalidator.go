package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/metrics"
	"github.com/vhoang/orderledger/internal/port"
)

const (
	productKeyPrefix  = "products:id:"
	productListPrefix = "products:list:"
)

// ProductCacheKey is the cache key for a single product representation.
func ProductCacheKey(productID int64) string {
	return productKeyPrefix + formatID(productID)
}

type invalidation struct {
	key      string
	prefix   bool
	attempts int
}

// CacheInvalidator purges cached product representations after a committed
// stock mutation. The first attempt runs synchronously before the caller
// responds; failed purges are handed to a retry worker pool and never
// surfaced, since the cache is purely an optimization over the ledger.
type CacheInvalidator struct {
	cache       port.CacheRepository
	log         *zap.Logger
	rec         *metrics.Recorder
	timeout     time.Duration
	maxAttempts int

	retries chan invalidation
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type InvalidatorConfig struct {
	Timeout     time.Duration
	QueueSize   int
	Workers     int
	MaxAttempts int
}

func NewCacheInvalidator(cache port.CacheRepository, log *zap.Logger, rec *metrics.Recorder, cfg InvalidatorConfig) *CacheInvalidator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	c := &CacheInvalidator{
		cache:       cache,
		log:         log,
		rec:         rec,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		retries:     make(chan invalidation, cfg.QueueSize),
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.retryLoop()
		}()
	}
	return c
}

// ProductChanged purges the product's own cache entry and every cached
// product list. Called only after the owning transaction has committed.
func (c *CacheInvalidator) ProductChanged(productID int64) {
	c.purge(invalidation{key: ProductCacheKey(productID)})
	c.purge(invalidation{key: productListPrefix, prefix: true})
}

func (c *CacheInvalidator) purge(inv invalidation) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var err error
	if inv.prefix {
		err = c.cache.InvalidatePrefix(ctx, inv.key)
	} else {
		err = c.cache.Invalidate(ctx, inv.key)
	}
	if err == nil {
		return
	}

	c.rec.InvalidationFailure()
	inv.attempts++
	if inv.attempts >= c.maxAttempts {
		// Stale entry is now bounded by its own TTL.
		c.log.Error("cache invalidation abandoned",
			zap.String("key", inv.key),
			zap.Int("attempts", inv.attempts),
			zap.Error(err),
		)
		return
	}

	c.log.Warn("cache invalidation failed, queuing retry",
		zap.String("key", inv.key),
		zap.Int("attempt", inv.attempts),
		zap.Error(err),
	)
	c.enqueue(inv)
}

func (c *CacheInvalidator) enqueue(inv invalidation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.retries <- inv:
	default:
		c.log.Error("invalidation retry queue full, dropping",
			zap.String("key", inv.key),
		)
	}
}

func (c *CacheInvalidator) retryLoop() {
	for inv := range c.retries {
		time.Sleep(time.Duration(inv.attempts) * 50 * time.Millisecond)
		c.purge(inv)
	}
}

// Close drains the retry queue and stops the workers.
func (c *CacheInvalidator) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.retries)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
