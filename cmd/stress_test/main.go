// Concurrent no-oversell exerciser: N parallel line creations against a
// product with less stock than total demand. Expects exactly stock-many to
// succeed and the rest to be rejected with insufficient stock.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/adapter/storage"
	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/core/service"
	"github.com/vhoang/orderledger/internal/metrics"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/orderledger?parseTime=true"
	redisAddr     = "localhost:6379"
	initialStock  = 20
	totalRequests = 50
	unitPrice     = "19.99"
)

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Seed one product to fight over and one order to attach lines to.
	db.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = 900001`)
	db.ExecContext(ctx, `DELETE FROM orders WHERE id = 900001`)
	db.ExecContext(ctx, `DELETE FROM products WHERE id = 900001`)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, category_id, created_at, updated_at)
		VALUES (900001, 'stress-item', ?, ?, 1, NOW(), NOW())`, unitPrice, initialStock); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO orders (id, created_at) VALUES (900001, NOW())`); err != nil {
		log.Fatalf("failed to seed order: %v", err)
	}

	rec := metrics.New(prometheus.NewRegistry())
	store := storage.NewMySQLStore(db, 5*time.Second)
	cache := storage.NewRedisAdapter(rdb)
	invalidator := service.NewCacheInvalidator(cache, logger, rec, service.InvalidatorConfig{})
	defer invalidator.Close()
	processor := service.NewOrderLineProcessor(store, service.NewStockLedger(logger), invalidator, logger, rec)

	price := decimal.RequireFromString(unitPrice)

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := processor.CreateLine(ctx, service.CreateLineInput{
				OrderID:   900001,
				ProductID: 900001,
				Quantity:  1,
				UnitPrice: price,
			})
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &stockErr):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d lines created, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	var finalStock int
	db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = 900001`).Scan(&finalStock)
	fmt.Printf("Final Stock: %d\n", finalStock)
	if finalStock == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", finalStock)
	}
}
