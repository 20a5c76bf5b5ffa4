package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/common"
	"github.com/noah-isme/trustflowpay/internal/order"
)

// Handler exposes the checkout page and the operator payment endpoints.
type Handler struct {
	Builder  *RequestBuilder
	Enquirer *StatusEnquirer
	Store    order.Store
	Settings Settings
	View     *CheckoutView
	Logger   zerolog.Logger
}

type requestResp struct {
	OrderID     string      `json:"orderId"`
	Reference   string      `json:"reference"`
	Environment Environment `json:"environment"`
	CheckoutURL string      `json:"checkoutUrl"`
	Params      Params      `json:"params"`
}

// CreateRequest issues a fresh signed payment request for an order.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Builder == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	req, err := h.Builder.Build(r.Context(), orderID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, "ORDER_ALREADY_PAID", "order is already paid", nil)
		return
	case err != nil:
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("build payment request")
		common.JSONError(w, http.StatusInternalServerError, "REQUEST_FAILED", "unable to create payment request", nil)
		return
	}
	common.JSON(w, http.StatusCreated, requestResp{
		OrderID:     req.OrderID,
		Reference:   req.Reference,
		Environment: req.Environment,
		CheckoutURL: req.CheckoutURL,
		Params:      req.Params,
	})
}

// Checkout renders the auto-submitting form for the order's persisted request.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	o, err := h.Store.Get(r.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) || orderID == "" {
		http.Error(w, "Order not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("load order for checkout")
		http.Error(w, "Unable to load order.", http.StatusInternalServerError)
		return
	}
	raw := o.MetaValue(MetaRequestParams)
	if raw == "" {
		h.Logger.Error().Str("order_id", orderID).Msg("checkout page without stored payment parameters")
		http.Error(w, "Payment parameters not found.", http.StatusInternalServerError)
		return
	}
	params, err := DecodeParams([]byte(raw))
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("decode stored payment parameters")
		http.Error(w, "Payment parameters not found.", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.View.Render(&buf, params, h.Settings.ForOrder(o), h.Settings.DisplayMode, h.Settings.StoreName); err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("render checkout page")
		http.Error(w, "Unable to render checkout.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type enquiryResp struct {
	EnquiryResult
	Summary string `json:"summary"`
}

// StatusEnquiry runs an operator-triggered status enquiry. It is offered only
// while the order awaits a result.
func (h *Handler) StatusEnquiry(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Enquirer == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "status enquiry unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	o, err := h.Store.Get(r.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_LOOKUP_FAILED", "unable to load order", nil)
		return
	}
	if !EnquiryAllowed(o) {
		common.JSONError(w, http.StatusConflict, "ENQUIRY_NOT_ALLOWED", "status enquiry is only available for pending or on-hold orders", map[string]any{"status": o.Status})
		return
	}

	res, err := h.Enquirer.Enquire(r.Context(), o.ID)
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", o.ID).Msg("status enquiry")
		common.JSONError(w, http.StatusInternalServerError, "ENQUIRY_FAILED", "status enquiry failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, enquiryResp{EnquiryResult: res, Summary: Summary(res)})
}

// EnquiryAllowed reports whether an operator may poll the gateway for o.
func EnquiryAllowed(o order.Order) bool {
	return o.Status == order.StatusPending || o.Status == order.StatusOnHold
}

// Summary renders an enquiry result as the operator notice.
func Summary(res EnquiryResult) string {
	if !res.Success {
		return "Status enquiry failed: " + res.Message
	}
	return fmt.Sprintf("Status enquiry completed. Response Code: %s | Status: %s | Message: %s", res.ResponseCode, res.Status, res.Message)
}

type snapshotResp struct {
	OrderID       string          `json:"orderId"`
	Status        order.Status    `json:"status"`
	Paid          bool            `json:"paid"`
	TransactionID string          `json:"transactionId,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Environment   string          `json:"environment,omitempty"`
	ResponseCode  string          `json:"responseCode,omitempty"`
	GatewayStatus string          `json:"gatewayStatus,omitempty"`
	GatewayRef    string          `json:"gatewayRef,omitempty"`
	Message       string          `json:"message,omitempty"`
	FullResponse  json.RawMessage `json:"fullResponse,omitempty"`
	Notes         []order.Note    `json:"notes"`
}

// Snapshot returns the last recorded gateway outcome for an order together
// with its notes.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	o, err := h.Store.Get(r.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_LOOKUP_FAILED", "unable to load order", nil)
		return
	}
	notes, err := h.Store.Notes(r.Context(), o.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTES_LOOKUP_FAILED", "unable to load notes", nil)
		return
	}
	if notes == nil {
		notes = []order.Note{}
	}
	resp := snapshotResp{
		OrderID:       o.ID,
		Status:        o.Status,
		Paid:          o.Paid,
		TransactionID: o.TransactionID,
		Reference:     o.MetaValue(MetaReference),
		Environment:   o.MetaValue(MetaEnvironment),
		ResponseCode:  o.MetaValue(MetaResponseCode),
		GatewayStatus: o.MetaValue(MetaStatus),
		GatewayRef:    o.MetaValue(MetaPGRefNum),
		Message:       o.MetaValue(MetaResponseMessage),
		Notes:         notes,
	}
	if full := o.MetaValue(MetaFullResponse); full != "" && json.Valid([]byte(full)) {
		resp.FullResponse = json.RawMessage(full)
	}
	common.JSON(w, http.StatusOK, resp)
}
