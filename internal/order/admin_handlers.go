package order

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/trustflowpay/internal/common"
)

// AdminHandler provides operator status overrides.
type AdminHandler struct {
	Store Store
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus moves an order to a new status when the transition is allowed.
// The paid flag is never touched here; only gateway outcomes mark orders paid.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	orderID := chi.URLParam(r, "orderId")
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required", nil)
		return
	}
	target := Status(req.Status)
	if !target.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	current, err := h.Store.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if !CanTransition(current, target) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "state transition not allowed", nil)
		return
	}
	if err := h.Store.SetStatus(r.Context(), orderID, target); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update order status", nil)
		return
	}
	note := fmt.Sprintf("Order status changed by operator from %s to %s.", current.Status, target)
	if err := h.Store.AddNote(r.Context(), orderID, note); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to record order note", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CanTransition reports whether an operator may move o to target.
// Unpaid orders may only be cancelled or parked on-hold; paid orders may only
// move forward to completed.
func CanTransition(o Order, target Status) bool {
	if o.Status == target {
		return false
	}
	if o.Paid {
		return o.Status == StatusProcessing && target == StatusCompleted
	}
	switch o.Status {
	case StatusPending, StatusOnHold, StatusFailed:
		return target == StatusCancelled || target == StatusOnHold
	default:
		return false
	}
}
