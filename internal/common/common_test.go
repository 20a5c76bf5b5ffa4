package common_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	require.Equal(t, "10.0.0.9", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	require.Equal(t, "10.0.0.9", common.ClientIP(req), "forwarding headers are left to RealIP")

	req.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", common.ClientIP(req))

	req.RemoteAddr = "198.51.100.7"
	require.Equal(t, "198.51.100.7", common.ClientIP(req))
	require.Empty(t, common.ClientIP(nil))
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Status string `json:"status"`
	}
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"cancelled"}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, "cancelled", dst.Status)

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"cancelled","paid":true}`))
	require.Error(t, common.DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"on-hold"} {}`))
	require.Error(t, common.DecodeJSON(req, &dst))
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil)
	page, perPage := common.ParsePagination(req, 20)
	require.Equal(t, 3, page)
	require.Equal(t, common.MaxPerPage, perPage)

	req = httptest.NewRequest(http.MethodGet, "/?page=-1&limit=abc", nil)
	page, perPage = common.ParsePagination(req, 20)
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("UNAUTHORIZED", "admin credentials required", http.StatusUnauthorized, errors.New("no token")))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "UNAUTHORIZED", body.Error.Code)
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAdminSubject(t *testing.T) {
	_, ok := common.AdminSubject(context.Background())
	require.False(t, ok)

	subject, ok := common.AdminSubject(common.WithAdminSubject(context.Background(), "ops@example.com"))
	require.True(t, ok)
	require.Equal(t, "ops@example.com", subject)
}

func TestIdemRejectsReplayAndForgetsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := http.StatusCreated
	calls := 0
	h := common.Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	send := func(path, key string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if key != "" {
			req.Header.Set(common.IdempotencyHeader, key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusCreated, send("/orders/1/payment-request", "k1"))
	require.Equal(t, http.StatusConflict, send("/orders/1/payment-request", "k1"))
	require.Equal(t, http.StatusCreated, send("/orders/2/payment-request", "k1"))
	require.Equal(t, http.StatusCreated, send("/orders/1/payment-request", ""))
	require.Equal(t, 3, calls)

	status = http.StatusInternalServerError
	require.Equal(t, http.StatusInternalServerError, send("/orders/3/payment-request", "k2"))
	require.Equal(t, http.StatusInternalServerError, send("/orders/3/payment-request", "k2"))
	require.Equal(t, 5, calls)
}
