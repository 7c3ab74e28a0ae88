package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/metrics"
	"github.com/vhoang/orderledger/internal/port"
)

const rateKeyPrefix = "rate_limit:"

// RateGate bounds the request rate per client key with a fixed-window counter.
// The increment and the expiry refresh run as one atomic round trip; both are
// verified, and a counter whose expiry failed to set is corrected so a client
// is never blocked by a permanent key. The gate fails open: if the counter
// store is unreachable the request is allowed.
type RateGate struct {
	counter port.RateCounter
	limit   int
	window  time.Duration
	enabled bool
	log     *zap.Logger
	rec     *metrics.Recorder
}

func NewRateGate(counter port.RateCounter, limit int, window time.Duration, enabled bool, log *zap.Logger, rec *metrics.Recorder) *RateGate {
	return &RateGate{
		counter: counter,
		limit:   limit,
		window:  window,
		enabled: enabled,
		log:     log,
		rec:     rec,
	}
}

func (g *RateGate) Limit() int { return g.limit }

// TryAcquire consumes one unit of the client's allowance and returns the
// remaining count, or a RateExceededError once the threshold is crossed.
func (g *RateGate) TryAcquire(ctx context.Context, clientKey string) (int, error) {
	if !g.enabled {
		return g.limit, nil
	}

	key := rateKeyPrefix + clientKey

	count, expireSet, err := g.counter.Incr(ctx, key, g.window)
	if err != nil {
		g.rec.RateDecision(metrics.RateFailOpen)
		g.log.Warn("rate counter unreachable, failing open",
			zap.String("client", clientKey),
			zap.Error(err),
		)
		return g.limit, nil
	}

	if !expireSet {
		// The increment landed but the expiry refresh did not. Left alone
		// the counter never resets and the client is blocked forever.
		g.log.Warn("rate counter expiry not set, forcing",
			zap.String("key", key),
		)
		if err := g.counter.Expire(ctx, key, g.window); err != nil {
			g.log.Error("forcing rate counter expiry failed, removing key",
				zap.String("key", key),
				zap.Error(err),
			)
			if err := g.counter.Remove(ctx, key); err != nil {
				g.log.Error("removing rate counter failed",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		}
	}

	if count > int64(g.limit) {
		g.rec.RateDecision(metrics.RateLimited)
		return 0, &domain.RateExceededError{Limit: g.limit, RetryAfter: g.window}
	}

	g.rec.RateDecision(metrics.RateAllowed)
	return g.limit - int(count), nil
}
