package order

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/trustflowpay/internal/common"
)

// Handler exposes read-only order views for operators.
type Handler struct {
	Store Store
}

// List returns orders in the statuses named by the status query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	statuses, ok := parseStatuses(r.URL.Query().Get("status"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	_, perPage := common.ParsePagination(r, 20)
	orders, err := h.Store.ListByStatus(r.Context(), statuses, perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	response := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		response = append(response, summary(o))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(response)))
	common.JSON(w, http.StatusOK, map[string]any{"data": response})
}

// Get returns one order with its notes.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	orderID := chi.URLParam(r, "orderId")
	o, err := h.Store.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	notes, err := h.Store.Notes(r.Context(), o.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order notes", nil)
		return
	}
	data := summary(o)
	data["billing"] = o.Billing
	if o.HasShippingAddress() {
		data["shipping"] = o.Shipping
	}
	data["notes"] = renderNotes(notes)
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

func summary(o Order) map[string]any {
	return map[string]any{
		"id":            o.ID,
		"status":        o.Status,
		"paid":          o.Paid,
		"transactionId": o.TransactionID,
		"total":         o.Total.StringFixed(2),
		"currency":      o.Currency,
		"createdAt":     o.CreatedAt,
		"updatedAt":     o.UpdatedAt,
	}
}

func renderNotes(notes []Note) []map[string]any {
	out := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		out = append(out, map[string]any{"id": n.ID, "body": n.Body, "createdAt": n.CreatedAt})
	}
	return out
}

func parseStatuses(raw string) ([]Status, bool) {
	if strings.TrimSpace(raw) == "" {
		return []Status{StatusPending, StatusOnHold}, true
	}
	var out []Status
	for _, part := range strings.Split(raw, ",") {
		st := Status(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, false
		}
		out = append(out, st)
	}
	return out, true
}
