package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/trustflowpay/internal/common"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts one event for key and reports whether it fits the limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	// OnError observes limiter failures. Requests are let through when the
	// limiter cannot answer.
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Key == nil || h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(time.Until(d.Reset).Seconds())
			headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 0)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ByClientIP keys requests on the caller's address under prefix.
func ByClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		ip := common.ClientIP(r)
		if ip == "" {
			return ""
		}
		return prefix + ip
	}
}

// ByURLParam keys requests on a chi URL parameter under prefix.
func ByURLParam(prefix, name string) func(*http.Request) string {
	return func(r *http.Request) string {
		v := chi.URLParam(r, name)
		if v == "" {
			return ""
		}
		return prefix + v
	}
}
