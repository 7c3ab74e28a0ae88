// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, the backing stores
// and the ledger's timing behavior.
type Config struct {
	HTTPAddr string

	MySQLDSN          string
	MySQLMaxOpenConns int
	MySQLMaxIdleConns int

	RedisAddr     string
	RedisPoolSize int

	LockWaitTimeout time.Duration

	CacheTTL              time.Duration
	InvalidateTimeout     time.Duration
	InvalidateQueueSize   int
	InvalidateWorkers     int
	InvalidateMaxAttempts int

	RateLimitEnabled bool
	RateLimitCalls   int
	RateLimitPeriod  time.Duration

	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		MySQLDSN:          getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/orderledger?parseTime=true"),
		MySQLMaxOpenConns: atoienv("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns: atoienv("MYSQL_MAX_IDLE_CONNS", 25),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize: atoienv("REDIS_POOL_SIZE", 100),

		LockWaitTimeout: durenvs("LOCK_WAIT_TIMEOUT", 5),

		CacheTTL:              durenvs("CACHE_TTL", 300),
		InvalidateTimeout:     durenvms("INVALIDATE_TIMEOUT_MS", 500),
		InvalidateQueueSize:   atoienv("INVALIDATE_QUEUE_SIZE", 1024),
		InvalidateWorkers:     atoienv("INVALIDATE_WORKERS", 2),
		InvalidateMaxAttempts: atoienv("INVALIDATE_MAX_ATTEMPTS", 3),

		RateLimitEnabled: boolenv("RATE_LIMIT_ENABLED", true),
		RateLimitCalls:   atoienv("RATE_LIMIT_CALLS", 100),
		RateLimitPeriod:  durenvs("RATE_LIMIT_PERIOD", 60),

		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 5),
	}
}
