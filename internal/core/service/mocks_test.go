package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/port"
)

// memStore is an in-memory LedgerStore with real per-product row locks, so
// concurrent transactions against the same product genuinely serialize the
// way InnoDB row locks do.
type memStore struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	orders   map[int64]bool
	lines    map[int64]*domain.OrderLine
	nextLine int64
	rowLocks map[int64]*sync.Mutex

	failCommit bool
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]*domain.Product),
		orders:   make(map[int64]bool),
		lines:    make(map[int64]*domain.OrderLine),
		rowLocks: make(map[int64]*sync.Mutex),
	}
}

func seedStore(stock int, price string) *memStore {
	s := newMemStore()
	s.products[1] = &domain.Product{
		ID:         1,
		Name:       "widget",
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: 1,
	}
	s.orders[10] = true
	return s
}

func (s *memStore) rowLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rowLocks[id]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[id] = m
	}
	return m
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx := &memTx{s: s}
	err := fn(tx)
	if err == nil && s.failCommit {
		err = errors.New("commit: connection reset")
	}
	if err != nil {
		tx.rollback()
	}
	tx.unlockAll()
	return err
}

func (s *memStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) stockOf(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) lineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

type memTx struct {
	s    *memStore
	held []*sync.Mutex
	undo []func()
}

func (t *memTx) unlockAll() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) ProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	t.s.mu.Lock()
	_, ok := t.s.products[productID]
	t.s.mu.Unlock()
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	// Block here like a row lock would; held until the tx ends.
	m := t.s.rowLock(productID)
	m.Lock()
	t.held = append(t.held, m)

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p := t.s.products[productID]
	prev := p.Stock
	p.Stock += delta
	t.undo = append(t.undo, func() { p.Stock = prev })
	return p.Stock, nil
}

func (t *memTx) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.orders[orderID], nil
}

func (t *memTx) GetLine(ctx context.Context, lineID int64) (*domain.OrderLine, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	line, ok := t.s.lines[lineID]
	if !ok {
		return nil, nil
	}
	cp := *line
	return &cp, nil
}

func (t *memTx) InsertLine(ctx context.Context, line *domain.OrderLine) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextLine++
	id := t.s.nextLine
	cp := *line
	cp.ID = id
	t.s.lines[id] = &cp
	t.undo = append(t.undo, func() { delete(t.s.lines, id) })
	return id, nil
}

func (t *memTx) UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	line := t.s.lines[lineID]
	prev := line.Quantity
	line.Quantity = quantity
	t.undo = append(t.undo, func() { line.Quantity = prev })
	return nil
}

func (t *memTx) DeleteLine(ctx context.Context, lineID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	line := t.s.lines[lineID]
	delete(t.s.lines, lineID)
	t.undo = append(t.undo, func() { t.s.lines[lineID] = line })
	return nil
}

// memCache records invalidations and can be made to fail.
type memCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
	failNext    int
	getErr      error
	setErr      error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.data[key], nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return errors.New("cache unreachable")
	}
	delete(c.data, key)
	c.invalidated = append(c.invalidated, key)
	return nil
}

func (c *memCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return errors.New("cache unreachable")
	}
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	c.invalidated = append(c.invalidated, prefix+"*")
	return nil
}

func (c *memCache) invalidations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.invalidated))
	copy(out, c.invalidated)
	return out
}

// memCounter backs rate gate tests.
type memCounter struct {
	mu        sync.Mutex
	counts    map[string]int64
	incrErr   error
	expireOK  bool
	expireErr error
	expired   []string
	removed   []string
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64), expireOK: true}
}

func (c *memCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incrErr != nil {
		return 0, false, c.incrErr
	}
	c.counts[key]++
	return c.counts[key], c.expireOK, nil
}

func (c *memCounter) Expire(ctx context.Context, key string, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expireErr != nil {
		return c.expireErr
	}
	c.expired = append(c.expired, key)
	return nil
}

func (c *memCounter) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
	c.removed = append(c.removed, key)
	return nil
}

var _ port.LedgerStore = (*memStore)(nil)
var _ port.CacheRepository = (*memCache)(nil)
var _ port.RateCounter = (*memCounter)(nil)
