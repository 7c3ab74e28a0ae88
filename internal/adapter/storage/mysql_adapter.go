package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/port"
)

// mysqlErrLockWait is MySQL error 1205 (lock wait timeout exceeded).
const mysqlErrLockWait = 1205

// MySQLStore implements port.LedgerStore over InnoDB. Row locks come from
// SELECT ... FOR UPDATE and are held until the transaction resolves, which is
// what serializes concurrent reservations against the same product.
type MySQLStore struct {
	db       *sql.DB
	lockWait time.Duration
}

func NewMySQLStore(db *sql.DB, lockWait time.Duration) *MySQLStore {
	return &MySQLStore{db: db, lockWait: lockWait}
}

func (s *MySQLStore) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if s.lockWait > 0 {
		secs := int(s.lockWait.Seconds())
		if secs < 1 {
			secs = 1
		}
		if _, err := tx.ExecContext(ctx, "SET innodb_lock_wait_timeout = ?", secs); err != nil {
			return fmt.Errorf("set lock wait timeout: %w", err)
		}
	}

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, category_id, created_at, updated_at
		FROM products WHERE id = ?`, productID)
	return scanProduct(row)
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) ProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, price, stock, category_id, created_at, updated_at
		FROM products WHERE id = ? FOR UPDATE`, productID)

	p, err := scanProduct(row)
	if err != nil {
		return nil, mapStoreErr("lock product", err)
	}
	if p == nil {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (t *ledgerTx) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error) {
	// The row is already locked by ProductForUpdate and the ledger has
	// checked the delta; the WHERE clause is a final guard against negative
	// stock ever being written.
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + ?, updated_at = NOW()
		WHERE id = ? AND stock + ? >= 0`,
		delta, productID, delta)
	if err != nil {
		return 0, mapStoreErr("apply stock delta", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return 0, fmt.Errorf("apply stock delta: product %d rejected delta %d", productID, delta)
	}

	var stock int
	if err := t.tx.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = ?`, productID,
	).Scan(&stock); err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}

func (t *ledgerTx) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM orders WHERE id = ?`, orderID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query order: %w", err)
	}
	return true, nil
}

func (t *ledgerTx) GetLine(ctx context.Context, lineID int64) (*domain.OrderLine, error) {
	var (
		line  domain.OrderLine
		price string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, created_at, updated_at
		FROM order_lines WHERE id = ?`, lineID,
	).Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &price,
		&line.CreatedAt, &line.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query line: %w", err)
	}
	line.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse line price: %w", err)
	}
	return &line, nil
}

func (t *ledgerTx) InsertLine(ctx context.Context, line *domain.OrderLine) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, product_id, quantity, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		line.OrderID, line.ProductID, line.Quantity, line.Price.String(),
		line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("line id: %w", err)
	}
	return id, nil
}

func (t *ledgerTx) UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE order_lines SET quantity = ?, updated_at = NOW() WHERE id = ?`,
		quantity, lineID)
	if err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	return nil
}

func (t *ledgerTx) DeleteLine(ctx context.Context, lineID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE id = ?`, lineID)
	if err != nil {
		return fmt.Errorf("delete line: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.CategoryID,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return &p, nil
}

// mapStoreErr translates lock-wait failures into the retryable domain error,
// keeping driver error codes out of the service layer.
func mapStoreErr(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrLockWait {
		return domain.ErrLockTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrLockTimeout
	}
	return fmt.Errorf("%s: %w", op, err)
}
