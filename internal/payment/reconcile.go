package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
)

// Channel names the path an outcome arrived on.
type Channel string

const (
	ChannelReturn  Channel = "return"
	ChannelWebhook Channel = "webhook"
	ChannelEnquiry Channel = "enquiry"
)

// Decision is the branch Reconcile took.
type Decision string

const (
	DecisionPaid        Decision = "paid"
	DecisionAlreadyPaid Decision = "already_paid"
	DecisionOnHold      Decision = "on_hold"
	DecisionFailed      Decision = "failed"
)

const (
	successCode   = "000"
	successStatus = "Captured"
)

var inProgressStatuses = map[string]struct{}{
	"Pending":                   {},
	"Timeout":                   {},
	"Enrolled":                  {},
	"Authentication Successful": {},
}

// Outcome is an authenticated gateway report about one payment attempt.
type Outcome struct {
	Channel      Channel
	ResponseCode string
	Status       string
	TxnID        string
	GatewayRef   string
	Message      string
	Raw          Params
}

// OutcomeFromParams extracts the outcome fields from a verified message.
func OutcomeFromParams(channel Channel, p Params) Outcome {
	return Outcome{
		Channel:      channel,
		ResponseCode: strings.TrimSpace(p.Get(FieldResponseCode)),
		Status:       strings.TrimSpace(p.Get(FieldStatus)),
		TxnID:        strings.TrimSpace(p.Get(FieldTxnID)),
		GatewayRef:   strings.TrimSpace(p.Get(FieldPGRefNum)),
		Message:      strings.TrimSpace(p.Get(FieldResponseMessage)),
		Raw:          p,
	}
}

// Succeeded reports the one combination the gateway uses for a captured
// payment. Both values are matched literally.
func (o Outcome) Succeeded() bool {
	return o.ResponseCode == successCode && o.Status == successStatus
}

// InProgress reports whether the gateway has not reached a final answer.
func (o Outcome) InProgress() bool {
	_, ok := inProgressStatuses[o.Status]
	return ok
}

// Reconciler applies outcomes to orders. It is the only code path that marks
// orders paid, on-hold or failed on behalf of the gateway.
type Reconciler struct {
	Store         order.Store
	SuccessStatus order.Status
	Logger        zerolog.Logger
}

// Reconcile records the outcome on the order and moves it to the matching
// status. The paid transition happens at most once per order; every other
// write is safe to repeat.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string, out Outcome) (Decision, error) {
	ctx, span := otel.Tracer("payment.Reconciler").Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	var decision Decision
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.channel", string(out.Channel)),
			attribute.String("payment.response_code", out.ResponseCode),
			attribute.String("payment.status", out.Status),
			attribute.String("payment.decision", string(decision)),
		)
		if decision != "" && obs.PaymentReconcileTotal != nil {
			obs.PaymentReconcileTotal.WithLabelValues(string(out.Channel), string(decision)).Inc()
		}
	}()

	raw := out.Raw
	if raw == nil {
		raw = Params{}
	}
	encoded, err := raw.Encode()
	if err != nil {
		return "", fmt.Errorf("encode raw response: %w", err)
	}
	log := r.Logger.With().Str("order_id", orderID).Str("channel", string(out.Channel)).Logger()
	log.Info().
		Str("response_code", out.ResponseCode).
		Str("status", out.Status).
		Msg("processing payment response")

	if err := r.Store.SetMeta(ctx, orderID, map[string]string{
		MetaResponseCode:    out.ResponseCode,
		MetaStatus:          out.Status,
		MetaTxnID:           out.TxnID,
		MetaPGRefNum:        out.GatewayRef,
		MetaResponseMessage: out.Message,
		MetaFullResponse:    string(encoded),
	}); err != nil {
		return r.fail(span, fmt.Errorf("persist outcome: %w", err))
	}

	switch {
	case out.Succeeded():
		current, err := r.Store.Get(ctx, orderID)
		if err != nil {
			return r.fail(span, fmt.Errorf("load order: %w", err))
		}
		if current.Paid {
			log.Warn().Msg("order already marked as paid, skipping duplicate processing")
			decision = DecisionAlreadyPaid
			return decision, nil
		}
		if err := r.Store.MarkPaid(ctx, orderID, out.TxnID); err != nil {
			return r.fail(span, fmt.Errorf("mark paid: %w", err))
		}
		status := r.successStatus()
		if err := r.Store.SetStatus(ctx, orderID, status); err != nil {
			return r.fail(span, fmt.Errorf("set status: %w", err))
		}
		note := fmt.Sprintf("TrustFlowPay payment completed. Transaction ID: %s | PG Reference: %s | Status: %s",
			out.TxnID, out.GatewayRef, out.Status)
		if err := r.Store.AddNote(ctx, orderID, note); err != nil {
			return r.fail(span, fmt.Errorf("add note: %w", err))
		}
		log.Info().Str("order_status", string(status)).Msg("order marked as paid")
		decision = DecisionPaid
	case out.InProgress():
		if err := r.Store.SetStatus(ctx, orderID, order.StatusOnHold); err != nil {
			return r.fail(span, fmt.Errorf("set status: %w", err))
		}
		note := fmt.Sprintf("TrustFlowPay payment pending. Response Code: %s | Status: %s | Message: %s",
			out.ResponseCode, out.Status, out.Message)
		if err := r.Store.AddNote(ctx, orderID, note); err != nil {
			return r.fail(span, fmt.Errorf("add note: %w", err))
		}
		log.Info().Str("status", out.Status).Msg("payment pending")
		decision = DecisionOnHold
	default:
		if err := r.Store.SetStatus(ctx, orderID, order.StatusFailed); err != nil {
			return r.fail(span, fmt.Errorf("set status: %w", err))
		}
		note := fmt.Sprintf("TrustFlowPay payment failed. Response Code: %s | Status: %s | Message: %s",
			out.ResponseCode, out.Status, out.Message)
		if err := r.Store.AddNote(ctx, orderID, note); err != nil {
			return r.fail(span, fmt.Errorf("add note: %w", err))
		}
		log.Error().
			Str("response_code", out.ResponseCode).
			Str("status", out.Status).
			Msg("payment failed")
		decision = DecisionFailed
	}
	return decision, nil
}

func (r *Reconciler) successStatus() order.Status {
	if r.SuccessStatus == order.StatusCompleted {
		return order.StatusCompleted
	}
	return order.StatusProcessing
}

func (r *Reconciler) fail(span trace.Span, err error) (Decision, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}
