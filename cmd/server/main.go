package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/adapter/handler"
	"github.com/vhoang/orderledger/internal/adapter/storage"
	"github.com/vhoang/orderledger/internal/config"
	"github.com/vhoang/orderledger/internal/core/service"
	"github.com/vhoang/orderledger/internal/metrics"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis. The cache and the rate counter are best-effort: the process
	// starts even when Redis is down, it just runs uncached and ungated.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing degraded", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rec := metrics.New(reg)

	// Adapters
	store := storage.NewMySQLStore(db, cfg.LockWaitTimeout)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Core services
	ledger := service.NewStockLedger(logger)
	invalidator := service.NewCacheInvalidator(redisAdapter, logger, rec, service.InvalidatorConfig{
		Timeout:     cfg.InvalidateTimeout,
		QueueSize:   cfg.InvalidateQueueSize,
		Workers:     cfg.InvalidateWorkers,
		MaxAttempts: cfg.InvalidateMaxAttempts,
	})
	processor := service.NewOrderLineProcessor(store, ledger, invalidator, logger, rec)
	catalog := service.NewProductCatalog(store, redisAdapter, cfg.CacheTTL, logger)
	gate := service.NewRateGate(redisAdapter, cfg.RateLimitCalls, cfg.RateLimitPeriod, cfg.RateLimitEnabled, logger, rec)

	// HTTP
	httpHandler := handler.NewHTTPHandler(processor, catalog, logger)

	api := http.NewServeMux()
	httpHandler.Register(api)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler.WithRateLimit(gate, logger, api))
	mux.HandleFunc("/health", httpHandler.HealthCheck(map[string]func(context.Context) error{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.WithRequestID(mux),
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	invalidator.Close()
	logger.Info("invalidator drained")

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
