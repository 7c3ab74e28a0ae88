package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFrom returns the correlation id attached by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID attaches an X-Request-ID to every request, generating one
// when the client did not send it, and echoes it on the response.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// Limiter is the rate gate as seen by the middleware.
type Limiter interface {
	TryAcquire(ctx context.Context, clientKey string) (int, error)
	Limit() int
}

// WithRateLimit gates every request by client IP before the ledger is
// touched. A rejection short-circuits with 429; counter-store failures fail
// open inside the gate itself.
func WithRateLimit(gate Limiter, log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		remaining, err := gate.TryAcquire(r.Context(), ip)
		if err != nil {
			var rateErr *domain.RateExceededError
			if errors.As(err, &rateErr) {
				retryAfter := strconv.Itoa(int(rateErr.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateErr.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				log.Warn("rate limit exceeded", zap.String("client_ip", ip))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error:     "rate limit exceeded",
					RequestID: RequestIDFrom(r.Context()),
				})
				return
			}
			// The gate fails open on infrastructure errors; anything else
			// here is unexpected but must not block the business path.
			log.Error("rate gate error, allowing request", zap.Error(err))
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(gate.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
