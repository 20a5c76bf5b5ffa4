package payment

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
)

// Customer-facing notices attached to return redirects.
const (
	NoticeInvalidResponse    = "Payment failed: Invalid response from payment gateway."
	NoticeOrderNotFound      = "Payment failed: Order not found."
	NoticeVerificationFailed = "Payment verification failed. Please contact support."
	NoticeNotCompleted       = "Payment could not be completed. Please try again."
)

// routingParams never belong to the gateway message.
var routingParams = []string{"wc-api"}

// ReturnHandler receives the customer's browser back from the hosted checkout.
// Every path ends in a redirect.
type ReturnHandler struct {
	Auth       Authenticator
	Reconciler *Reconciler
	// StripParams lists extra query or form fields added by the storefront.
	StripParams []string
}

// Handle serves GET and POST returns.
func (h ReturnHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment.ReturnHandler").Start(r.Context(), "ReturnHandler.Handle")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.return.result", result))
		if obs.PaymentReturnTotal != nil {
			obs.PaymentReturnTotal.WithLabelValues(result).Inc()
		}
	}()
	pages := h.Auth.Settings.Pages
	log := h.Auth.Logger

	params := h.collect(r, log)
	if len(params) == 0 {
		log.Error().Msg("return handler called with no parameters")
		result = "empty"
		http.Redirect(w, r, pageURL(pages.Checkout, "", ""), http.StatusFound)
		return
	}
	log.Debug().Strs("fields", params.Keys()).Msg("return parameters received")

	o, err := h.Auth.Lookup(ctx, params)
	switch {
	case errors.Is(err, ErrReferenceMissing):
		log.Error().Msg("no ORDER_ID in return data")
		result = "missing_reference"
		http.Redirect(w, r, pageURL(pages.Checkout, "", NoticeInvalidResponse), http.StatusFound)
		return
	case errors.Is(err, order.ErrNotFound):
		log.Error().Str("reference", params.Get(FieldOrderID)).Msg("order not found for ORDER_ID")
		result = "not_found"
		http.Redirect(w, r, pageURL(pages.Checkout, "", NoticeOrderNotFound), http.StatusFound)
		return
	case err != nil:
		log.Error().Err(err).Msg("order lookup failed")
		http.Redirect(w, r, pageURL(pages.Checkout, "", NoticeNotCompleted), http.StatusFound)
		return
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if err := h.Auth.Verify(o, params, ChannelReturn); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("return hash validation failed")
		if errors.Is(err, ErrInvalidSignature) {
			if nerr := h.Auth.Store.AddNote(ctx, o.ID, "TrustFlowPay payment failed: Invalid hash signature."); nerr != nil {
				log.Error().Err(nerr).Str("order_id", o.ID).Msg("add order note failed")
			}
		}
		result = "invalid_signature"
		http.Redirect(w, r, pageURL(pages.Cancel, o.ID, NoticeVerificationFailed), http.StatusFound)
		return
	}

	out := OutcomeFromParams(ChannelReturn, params)
	if _, err := h.Reconciler.Reconcile(ctx, o.ID, out); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("reconcile failed")
		http.Redirect(w, r, pageURL(pages.Pay, o.ID, NoticeNotCompleted), http.StatusFound)
		return
	}
	if out.Succeeded() {
		log.Info().Str("order_id", o.ID).Msg("payment successful, redirecting to confirmation page")
		result = "success"
		http.Redirect(w, r, pageURL(pages.Confirmation, o.ID, ""), http.StatusFound)
		return
	}
	log.Info().Str("order_id", o.ID).Msg("payment not successful, redirecting to order pay page")
	result = "unsuccessful"
	http.Redirect(w, r, pageURL(pages.Pay, o.ID, NoticeNotCompleted), http.StatusFound)
}

// collect prefers POSTed fields and falls back to the query string.
func (h ReturnHandler) collect(r *http.Request, log zerolog.Logger) Params {
	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Msg("return form unreadable, falling back to query string")
	}
	var src url.Values
	if len(r.PostForm) > 0 {
		src = r.PostForm
	} else {
		src = r.URL.Query()
	}
	params := make(Params, len(src))
	for k, v := range src {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	for _, k := range routingParams {
		delete(params, k)
	}
	for _, k := range h.StripParams {
		delete(params, k)
	}
	return params
}
