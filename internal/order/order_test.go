package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/order"
)

func seed(t *testing.T) *order.MemoryStore {
	t.Helper()
	store := order.NewMemoryStore()
	store.Put(order.Order{
		ID:        "1001",
		Status:    order.StatusPending,
		Total:     decimal.RequireFromString("49.99"),
		Currency:  "USD",
		Meta:      map[string]string{"_trustflowpay_order_id": "TFP-1001-1700000000"},
		CreatedAt: time.Unix(1700000000, 0),
	})
	store.Put(order.Order{
		ID:        "1002",
		Status:    order.StatusOnHold,
		Total:     decimal.RequireFromString("10"),
		Currency:  "JPY",
		CreatedAt: time.Unix(1700000100, 0),
	})
	store.Put(order.Order{
		ID:        "1003",
		Status:    order.StatusProcessing,
		Paid:      true,
		Total:     decimal.RequireFromString("5"),
		Currency:  "USD",
		CreatedAt: time.Unix(1700000200, 0),
	})
	return store
}

func TestMemoryStoreLookupAndWrites(t *testing.T) {
	ctx := context.Background()
	store := seed(t)

	o, err := store.FindByMeta(ctx, "_trustflowpay_order_id", "TFP-1001-1700000000")
	require.NoError(t, err)
	require.Equal(t, "1001", o.ID)

	_, err = store.FindByMeta(ctx, "_trustflowpay_order_id", "")
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, store.SetMeta(ctx, "1001", map[string]string{"_trustflowpay_status": "Captured"}))
	require.NoError(t, store.MarkPaid(ctx, "1001", "TXN1"))
	require.NoError(t, store.SetStatus(ctx, "1001", order.StatusProcessing))
	require.NoError(t, store.AddNote(ctx, "1001", "paid"))

	o, err = store.Get(ctx, "1001")
	require.NoError(t, err)
	require.True(t, o.Paid)
	require.Equal(t, "TXN1", o.TransactionID)
	require.Equal(t, order.StatusProcessing, o.Status)
	require.Equal(t, "Captured", o.MetaValue("_trustflowpay_status"))

	notes, err := store.Notes(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "paid", notes[0].Body)

	require.ErrorIs(t, store.AddNote(ctx, "missing", "x"), order.ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	o, err := store.Get(ctx, "1001")
	require.NoError(t, err)
	o.Meta["_trustflowpay_order_id"] = "mutated"

	again, err := store.Get(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, "TFP-1001-1700000000", again.MetaValue("_trustflowpay_order_id"))
}

func TestListByStatusOrdersByCreation(t *testing.T) {
	store := seed(t)
	orders, err := store.ListByStatus(context.Background(), []order.Status{order.StatusOnHold, order.StatusPending}, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "1001", orders[0].ID)
	require.Equal(t, "1002", orders[1].ID)

	limited, err := store.ListByStatus(context.Background(), []order.Status{order.StatusOnHold, order.StatusPending}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestAddressAndShipping(t *testing.T) {
	require.True(t, order.Address{FirstName: "Ann"}.IsZero())
	require.False(t, order.Address{Line1: "1 Main St"}.IsZero())

	o := order.Order{Shipping: &order.Address{}}
	require.False(t, o.HasShippingAddress())
	o.Shipping.City = "Austin"
	require.True(t, o.HasShippingAddress())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name   string
		order  order.Order
		target order.Status
		want   bool
	}{
		{"pending to cancelled", order.Order{Status: order.StatusPending}, order.StatusCancelled, true},
		{"failed to on-hold", order.Order{Status: order.StatusFailed}, order.StatusOnHold, true},
		{"pending to processing", order.Order{Status: order.StatusPending}, order.StatusProcessing, false},
		{"paid processing to completed", order.Order{Status: order.StatusProcessing, Paid: true}, order.StatusCompleted, true},
		{"paid to cancelled", order.Order{Status: order.StatusProcessing, Paid: true}, order.StatusCancelled, false},
		{"same status", order.Order{Status: order.StatusOnHold}, order.StatusOnHold, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, order.CanTransition(tc.order, tc.target))
		})
	}
}

func newRouter(store order.Store) http.Handler {
	r := chi.NewRouter()
	h := &order.Handler{Store: store}
	admin := &order.AdminHandler{Store: store}
	r.Get("/orders", h.List)
	r.Get("/orders/{orderId}", h.Get)
	r.Patch("/orders/{orderId}/status", admin.PatchStatus)
	return r
}

func TestHandlers(t *testing.T) {
	store := seed(t)
	router := newRouter(store)

	t.Run("list defaults to open statuses", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?status=shipped", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get unknown order", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/404", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("patch status records a note", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/orders/1002/status", strings.NewReader(`{"status":"cancelled"}`))
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		o, err := store.Get(context.Background(), "1002")
		require.NoError(t, err)
		require.Equal(t, order.StatusCancelled, o.Status)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/1002", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data struct {
				Status string           `json:"status"`
				Notes  []map[string]any `json:"notes"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "cancelled", body.Data.Status)
		require.Len(t, body.Data.Notes, 1)
	})

	t.Run("patch rejects paid order cancellation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/orders/1003/status", strings.NewReader(`{"status":"cancelled"}`))
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}
