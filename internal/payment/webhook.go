package payment

import (
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/trustflowpay/internal/common"
	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
)

const providerName = "trustflowpay"

// Webhook handles server-to-server outcome notifications from the gateway.
// The HTTP status only reflects delivery; the payment result lives on the order.
type Webhook struct {
	Auth       Authenticator
	Reconciler *Reconciler
	Replay     *redis.Client
	ReplayTTL  time.Duration
}

// Handle processes one notification.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "Webhook.Handle")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.webhook.result", result))
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(providerName, result).Inc()
		}
	}()
	log := h.Auth.Logger

	if h.Reconciler == nil || h.Auth.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		result = "invalid_body"
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	log.Debug().Str("body", truncate(string(body), 500)).Msg("webhook raw body")

	parsed, err := ParseResponseBody(body)
	if err != nil {
		log.Error().Err(err).Msg("webhook body rejected")
		result = "invalid_body"
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	log.Debug().Str("shape", parsed.Shape.String()).Strs("fields", parsed.Fields.Keys()).Msg("webhook parameters received")

	o, err := h.Auth.Lookup(ctx, parsed.Fields)
	switch {
	case errors.Is(err, ErrReferenceMissing):
		log.Error().Msg("no ORDER_ID in webhook data")
		result = "missing_reference"
		common.JSONError(w, http.StatusBadRequest, "ORDER_ID_MISSING", "ORDER_ID is required", nil)
		return
	case errors.Is(err, order.ErrNotFound):
		log.Error().Str("reference", parsed.Fields.Get(FieldOrderID)).Msg("order not found for ORDER_ID")
		result = "not_found"
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	case err != nil:
		log.Error().Err(err).Msg("order lookup failed")
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", "order lookup failed", nil)
		return
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if err := h.Auth.Verify(o, parsed.Fields, ChannelWebhook); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("webhook hash validation failed")
		if errors.Is(err, ErrInvalidSignature) {
			if nerr := h.Auth.Store.AddNote(ctx, o.ID, "TrustFlowPay webhook failed: Invalid hash signature."); nerr != nil {
				log.Error().Err(nerr).Str("order_id", o.ID).Msg("add order note failed")
			}
		}
		result = "invalid_signature"
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	var replayKey string
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = common.HashedKey("wh:"+providerName, string(body))
		fresh, err := h.Replay.SetNX(ctx, replayKey, o.ID, h.ReplayTTL).Result()
		if err != nil {
			log.Warn().Err(err).Msg("replay store unavailable, processing webhook")
			replayKey = ""
		} else if !fresh {
			log.Info().Str("order_id", o.ID).Msg("duplicate webhook acknowledged")
			result = "duplicate"
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	decision, err := h.Reconciler.Reconcile(ctx, o.ID, OutcomeFromParams(ChannelWebhook, parsed.Fields))
	if err != nil {
		if replayKey != "" {
			_ = h.Replay.Del(ctx, replayKey).Err()
		}
		log.Error().Err(err).Str("order_id", o.ID).Msg("reconcile failed")
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_ERROR", "unable to record outcome", nil)
		return
	}
	result = string(decision)
	w.WriteHeader(http.StatusOK)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
