package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
)

// ErrAlreadyPaid is returned when a new payment attempt is requested for a
// paid order.
var ErrAlreadyPaid = errors.New("payment: order already paid")

// Request is a signed payment request ready for the hosted checkout.
type Request struct {
	OrderID     string
	Reference   string
	Environment Environment
	Params      Params
	CheckoutURL string
}

// RequestBuilder produces signed payment requests and records them on the
// order so later channels can verify against the same values.
type RequestBuilder struct {
	Settings Settings
	Store    order.Store
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Build creates a fresh payment attempt for orderID. Each call issues a new
// reference and supersedes the previous attempt.
func (b *RequestBuilder) Build(ctx context.Context, orderID string) (Request, error) {
	ctx, span := otel.Tracer("payment.RequestBuilder").Start(ctx, "RequestBuilder.Build")
	defer span.End()

	creds := b.Settings.Active()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.environment", string(creds.Environment)),
			attribute.String("payment.request.result", result),
		)
		if obs.PaymentRequestTotal != nil {
			obs.PaymentRequestTotal.WithLabelValues(string(creds.Environment), result).Inc()
		}
	}()

	o, err := b.Store.Get(ctx, orderID)
	if err != nil {
		return Request{}, err
	}
	if o.Paid {
		result = "already_paid"
		return Request{}, ErrAlreadyPaid
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	reference := fmt.Sprintf("%s-%s-%d", b.Settings.referencePrefix(), o.ID, now().Unix())
	params := BuildParams(o, creds, reference, b.Settings.ReturnURL(), b.Settings.StoreName)
	params[FieldHash] = NewSigner(creds.SecretKey, b.Logger).Sign(params)

	encoded, err := params.Encode()
	if err != nil {
		return Request{}, fmt.Errorf("encode request params: %w", err)
	}
	if err := b.Store.SetMeta(ctx, o.ID, map[string]string{
		MetaReference:     reference,
		MetaAppID:         creds.AppID,
		MetaEnvironment:   string(creds.Environment),
		MetaRequestParams: string(encoded),
	}); err != nil {
		return Request{}, fmt.Errorf("persist request: %w", err)
	}
	result = "ok"
	b.Logger.Info().
		Str("order_id", o.ID).
		Str("reference", reference).
		Str("amount_minor", params[FieldAmount]).
		Msg("payment request initiated")
	return Request{
		OrderID:     o.ID,
		Reference:   reference,
		Environment: creds.Environment,
		Params:      params,
		CheckoutURL: b.Settings.CheckoutURL(o.ID),
	}, nil
}

// BuildParams assembles the unsigned request fields for o. Required customer
// fields fall back to placeholders because the gateway rejects empty values.
func BuildParams(o order.Order, creds Credentials, reference, returnURL, storeName string) Params {
	bill := o.Billing
	p := Params{
		FieldAppID:             creds.AppID,
		FieldOrderID:           reference,
		FieldTxnType:           "SALE",
		FieldCurrencyCode:      creds.CurrencyCode,
		FieldAmount:            strconv.FormatInt(ToMinorUnits(o.Total, o.Currency), 10),
		"CUST_FIRST_NAME":      orDefault(bill.FirstName, "Guest"),
		"CUST_LAST_NAME":       orDefault(bill.LastName, "Customer"),
		"CUST_NAME":            fullName(bill),
		"CUST_STREET_ADDRESS1": orDefault(bill.Line1, "N/A"),
		"CUST_CITY":            orDefault(bill.City, "N/A"),
		"CUST_STATE":           orDefault(bill.State, "N/A"),
		"CUST_COUNTRY":         orDefault(bill.Country, "US"),
		"CUST_ZIP":             orDefault(bill.Postcode, "00000"),
		"CUST_PHONE":           orDefault(bill.Phone, "0000000000"),
		"CUST_EMAIL":           orDefault(bill.Email, "noreply@example.com"),
		"PRODUCT_DESC":         fmt.Sprintf("Order #%s on %s", o.ID, storeName),
		FieldReturnURL:         returnURL,
	}
	if strings.TrimSpace(bill.Line2) != "" {
		p["CUST_STREET_ADDRESS2"] = bill.Line2
	}
	if o.HasShippingAddress() {
		ship := *o.Shipping
		p["CUST_SHIP_NAME"] = strings.TrimSpace(ship.FirstName + " " + ship.LastName)
		p["CUST_SHIP_STREET_ADDRESS1"] = orDefault(ship.Line1, "N/A")
		p["CUST_SHIP_CITY"] = orDefault(ship.City, "N/A")
		p["CUST_SHIP_STATE"] = orDefault(ship.State, "N/A")
		p["CUST_SHIP_COUNTRY"] = orDefault(ship.Country, "US")
		p["CUST_SHIP_ZIP"] = orDefault(ship.Postcode, "00000")
		if strings.TrimSpace(ship.Line2) != "" {
			p["CUST_SHIP_STREET_ADDRESS2"] = ship.Line2
		}
	}
	return p
}

func fullName(a order.Address) string {
	if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
		return name
	}
	return "Guest Customer"
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
