// Package metrics records ledger outcomes as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeCommitted         = "committed"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomePriceMismatch     = "price_mismatch"
	OutcomeNotFound          = "not_found"
	OutcomeLockTimeout       = "lock_timeout"
	OutcomeError             = "error"

	RateAllowed  = "allowed"
	RateLimited  = "limited"
	RateFailOpen = "fail_open"
)

type Recorder struct {
	lineOps          *prometheus.CounterVec
	rateDecisions    *prometheus.CounterVec
	invalidationFail prometheus.Counter
}

func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		lineOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderledger",
			Name:      "line_operations_total",
			Help:      "Order line mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		rateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderledger",
			Name:      "rate_gate_decisions_total",
			Help:      "Rate gate decisions.",
		}, []string{"decision"}),
		invalidationFail: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orderledger",
			Name:      "cache_invalidation_failures_total",
			Help:      "Cache invalidation attempts that failed and were queued for retry.",
		}),
	}
}

func (r *Recorder) LineOp(op, outcome string) {
	if r == nil {
		return
	}
	r.lineOps.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) RateDecision(decision string) {
	if r == nil {
		return
	}
	r.rateDecisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) InvalidationFailure() {
	if r == nil {
		return
	}
	r.invalidationFail.Inc()
}
