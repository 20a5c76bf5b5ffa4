package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/trustflowpay/internal/obs"
)

const maxEnquiryBody = 1 << 20

// HTTPDoer sends one outbound request. resilience.HTTPClient satisfies it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// EnquiryResult summarises a status enquiry for operators. Success means the
// gateway answered and the answer was applied, not that the order is paid.
type EnquiryResult struct {
	Success      bool     `json:"success"`
	ResponseCode string   `json:"responseCode,omitempty"`
	Status       string   `json:"status,omitempty"`
	Message      string   `json:"message"`
	Decision     Decision `json:"decision,omitempty"`
}

// StatusEnquirer polls the gateway for the state of an order's latest
// payment attempt and reconciles the answer.
type StatusEnquirer struct {
	Auth       Authenticator
	Reconciler *Reconciler
	Client     HTTPDoer
}

// Enquire performs one status enquiry for orderID. Gateway, transport and
// verification problems are reported in the result; the error is reserved for
// order lookup and store failures.
func (e *StatusEnquirer) Enquire(ctx context.Context, orderID string) (EnquiryResult, error) {
	ctx, span := otel.Tracer("payment.StatusEnquirer").Start(ctx, "StatusEnquirer.Enquire")
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.enquiry.result", outcome),
			attribute.Float64("payment.enquiry.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.PaymentEnquiryTotal != nil {
			obs.PaymentEnquiryTotal.WithLabelValues(outcome).Inc()
		}
		if obs.PaymentEnquiryLatency != nil {
			obs.PaymentEnquiryLatency.WithLabelValues(outcome).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()
	log := e.Auth.Logger.With().Str("order_id", orderID).Logger()

	o, err := e.Auth.Store.Get(ctx, orderID)
	if err != nil {
		return EnquiryResult{}, err
	}
	log.Info().Msg("status enquiry started")

	reference := o.MetaValue(MetaReference)
	if reference == "" {
		log.Error().Msg("cannot perform status enquiry: ORDER_ID not found in order meta")
		outcome = "missing_reference"
		return EnquiryResult{Message: "ORDER_ID not found"}, nil
	}
	creds := e.Auth.Settings.ForOrder(o)
	appID := o.MetaValue(MetaAppID)
	if appID == "" {
		appID = creds.AppID
	}
	amount := ToMinorUnits(o.Total, o.Currency)
	req := Params{
		FieldAppID:        appID,
		FieldOrderID:      reference,
		FieldCurrencyCode: creds.CurrencyCode,
		FieldAmount:       strconv.FormatInt(amount, 10),
	}
	if txn := o.MetaValue(MetaTxnID); txn != "" {
		req[FieldTxnID] = txn
	}
	req[FieldHash] = NewSigner(creds.SecretKey, e.Auth.Logger).Sign(req)

	payload := make(map[string]any, len(req))
	for k, v := range req {
		payload[k] = v
	}
	payload[FieldAmount] = amount
	body, err := json.Marshal(payload)
	if err != nil {
		return EnquiryResult{}, fmt.Errorf("encode enquiry: %w", err)
	}
	endpoint := creds.Endpoint(StatusEnquiryPath)
	log.Info().Str("endpoint", endpoint).Msg("status enquiry request")
	log.Debug().Interface("request", req.Without(FieldHash)).Msg("status enquiry request data (without secret)")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return EnquiryResult{}, fmt.Errorf("build enquiry request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.Client.Do(ctx, httpReq)
	if err != nil {
		log.Error().Err(err).Msg("status enquiry request failed")
		outcome = "transport_error"
		span.RecordError(err)
		return EnquiryResult{Message: err.Error()}, nil
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnquiryBody))
	if err != nil {
		log.Error().Err(err).Msg("status enquiry response read failed")
		outcome = "transport_error"
		return EnquiryResult{Message: err.Error()}, nil
	}
	log.Info().Int("http_status", resp.StatusCode).Msg("status enquiry response")
	log.Debug().Str("body", truncate(string(raw), 500)).Msg("status enquiry response body")

	if resp.StatusCode != http.StatusOK {
		outcome = "http_error"
		return EnquiryResult{Message: fmt.Sprintf("HTTP error: %d", resp.StatusCode)}, nil
	}
	parsed, err := ParseResponseBody(raw)
	if err != nil {
		if errors.Is(err, ErrUnrecognisedShape) {
			log.Error().Msg("status enquiry response format not recognized")
			outcome = "unrecognised_shape"
			return EnquiryResult{Message: "Unrecognized response format"}, nil
		}
		log.Error().Err(err).Msg("status enquiry JSON decode error")
		outcome = "invalid_json"
		return EnquiryResult{Message: "Invalid JSON response"}, nil
	}

	out := OutcomeFromParams(ChannelEnquiry, parsed.Fields)
	log.Info().Str("response_code", out.ResponseCode).Str("status", out.Status).Msg("status enquiry result")

	if err := e.Auth.Verify(o, parsed.Fields, ChannelEnquiry); err != nil {
		outcome = "invalid_signature"
		if errors.Is(err, ErrHashMissing) {
			return EnquiryResult{Message: "Hash missing"}, nil
		}
		if nerr := e.Auth.Store.AddNote(ctx, o.ID, "TrustFlowPay status enquiry failed: Invalid hash signature."); nerr != nil {
			return EnquiryResult{}, fmt.Errorf("add note: %w", nerr)
		}
		return EnquiryResult{Message: "Hash validation failed"}, nil
	}

	decision, err := e.Reconciler.Reconcile(ctx, o.ID, out)
	if err != nil {
		return EnquiryResult{}, err
	}
	outcome = string(decision)
	return EnquiryResult{
		Success:      true,
		ResponseCode: out.ResponseCode,
		Status:       out.Status,
		Message:      out.Message,
		Decision:     decision,
	}, nil
}
