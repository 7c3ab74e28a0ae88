package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
)

func newTestGate(counter *memCounter, limit int) *RateGate {
	return NewRateGate(counter, limit, time.Minute, true, zap.NewNop(), nil)
}

func TestTryAcquire_UnderLimit(t *testing.T) {
	gate := newTestGate(newMemCounter(), 3)

	for i := 0; i < 3; i++ {
		remaining, err := gate.TryAcquire(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if want := 3 - (i + 1); remaining != want {
			t.Errorf("call %d: expected remaining %d, got %d", i+1, want, remaining)
		}
	}
}

func TestTryAcquire_OverLimit(t *testing.T) {
	gate := newTestGate(newMemCounter(), 2)
	ctx := context.Background()

	gate.TryAcquire(ctx, "1.2.3.4")
	gate.TryAcquire(ctx, "1.2.3.4")

	_, err := gate.TryAcquire(ctx, "1.2.3.4")
	var rateErr *domain.RateExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateExceededError, got: %v", err)
	}
	if rateErr.Limit != 2 {
		t.Errorf("expected limit 2, got %d", rateErr.Limit)
	}
	if rateErr.RetryAfter != time.Minute {
		t.Errorf("expected retry-after 1m, got %s", rateErr.RetryAfter)
	}
}

func TestTryAcquire_ClientsCountedSeparately(t *testing.T) {
	gate := newTestGate(newMemCounter(), 1)
	ctx := context.Background()

	if _, err := gate.TryAcquire(ctx, "1.1.1.1"); err != nil {
		t.Fatalf("first client blocked: %v", err)
	}
	if _, err := gate.TryAcquire(ctx, "2.2.2.2"); err != nil {
		t.Fatalf("second client blocked by first's counter: %v", err)
	}
}

func TestTryAcquire_FailOpenOnCounterError(t *testing.T) {
	counter := newMemCounter()
	counter.incrErr = errors.New("connection refused")
	gate := newTestGate(counter, 2)

	// Availability over enforcement: every call succeeds while the store
	// is down.
	for i := 0; i < 10; i++ {
		remaining, err := gate.TryAcquire(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("call %d: expected fail-open success, got: %v", i+1, err)
		}
		if remaining != 2 {
			t.Errorf("call %d: expected full allowance, got %d", i+1, remaining)
		}
	}
}

func TestTryAcquire_CorrectsMissingExpiry(t *testing.T) {
	counter := newMemCounter()
	counter.expireOK = false
	gate := newTestGate(counter, 5)

	if _, err := gate.TryAcquire(context.Background(), "1.2.3.4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(counter.expired) != 1 {
		t.Fatalf("expected corrective Expire call, got %d", len(counter.expired))
	}
	if counter.expired[0] != rateKeyPrefix+"1.2.3.4" {
		t.Errorf("unexpected key expired: %s", counter.expired[0])
	}
}

func TestTryAcquire_RemovesCounterWhenExpiryUnfixable(t *testing.T) {
	counter := newMemCounter()
	counter.expireOK = false
	counter.expireErr = errors.New("connection refused")
	gate := newTestGate(counter, 5)

	if _, err := gate.TryAcquire(context.Background(), "1.2.3.4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An unbounded counter would block the client forever; the key must go.
	if len(counter.removed) != 1 {
		t.Fatalf("expected counter removal, got %d", len(counter.removed))
	}
}

func TestTryAcquire_DisabledGateAlwaysAllows(t *testing.T) {
	counter := newMemCounter()
	gate := NewRateGate(counter, 1, time.Minute, false, zap.NewNop(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := gate.TryAcquire(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("disabled gate rejected: %v", err)
		}
	}
	if len(counter.counts) != 0 {
		t.Error("disabled gate touched the counter store")
	}
}
