package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	handler := Handler{
		Limiter: NewFixedWindow(memory.NewStore(), time.Minute, 1),
		Key:     func(*http.Request) string { return "static" },
	}

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	called := false
	handler := Handler{
		Limiter: failingLimiter{},
		Key:     func(*http.Request) string { return "err" },
		OnError: func(error) { called = true },
	}

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment/trustflowpay", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	require.Equal(t, "webhook:203.0.113.7", ByClientIP("webhook:")(req))

	r := chi.NewRouter()
	var key string
	r.Post("/orders/{orderId}/status-enquiry", func(w http.ResponseWriter, r *http.Request) {
		key = ByURLParam("enquiry:", "orderId")(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/orders/42/status-enquiry", nil))
	require.Equal(t, "enquiry:42", key)
	require.Empty(t, ByURLParam("enquiry:", "orderId")(req))
}
