package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/order"
	"github.com/noah-isme/trustflowpay/internal/payment"
)

func TestBuildParamsDefaults(t *testing.T) {
	o := order.Order{ID: "12", Total: decimal.RequireFromString("1000"), Currency: "JPY"}
	creds := payment.Credentials{AppID: "A1", CurrencyCode: "392"}
	p := payment.BuildParams(o, creds, "TFP-12-1", "https://shop.example/return", "Shop")

	want := payment.Params{
		"APP_ID":               "A1",
		"ORDER_ID":             "TFP-12-1",
		"TXNTYPE":              "SALE",
		"CURRENCY_CODE":        "392",
		"AMOUNT":               "1000",
		"CUST_FIRST_NAME":      "Guest",
		"CUST_LAST_NAME":       "Customer",
		"CUST_NAME":            "Guest Customer",
		"CUST_STREET_ADDRESS1": "N/A",
		"CUST_CITY":            "N/A",
		"CUST_STATE":           "N/A",
		"CUST_COUNTRY":         "US",
		"CUST_ZIP":             "00000",
		"CUST_PHONE":           "0000000000",
		"CUST_EMAIL":           "noreply@example.com",
		"PRODUCT_DESC":         "Order #12 on Shop",
		"RETURN_URL":           "https://shop.example/return",
	}
	require.Equal(t, want, p)
}

func TestBuildParamsAddressDetails(t *testing.T) {
	o := order.Order{
		ID:       "13",
		Total:    decimal.RequireFromString("20.50"),
		Currency: "USD",
		Billing:  order.Address{FirstName: "Ada", LastName: "", Line1: "1 Main St", Line2: "Apt 4", City: "Springfield"},
		Shipping: &order.Address{FirstName: "Bob", LastName: "Builder", Line1: "9 Site Rd", Line2: "Unit 2", Postcode: "90210"},
	}
	p := payment.BuildParams(o, payment.Credentials{AppID: "A1", CurrencyCode: "840"}, "ref", "", "Shop")

	require.Equal(t, "2050", p["AMOUNT"])
	require.Equal(t, "Ada", p["CUST_NAME"])
	require.Equal(t, "Customer", p["CUST_LAST_NAME"])
	require.Equal(t, "Apt 4", p["CUST_STREET_ADDRESS2"])
	require.Equal(t, "Bob Builder", p["CUST_SHIP_NAME"])
	require.Equal(t, "9 Site Rd", p["CUST_SHIP_STREET_ADDRESS1"])
	require.Equal(t, "Unit 2", p["CUST_SHIP_STREET_ADDRESS2"])
	require.Equal(t, "N/A", p["CUST_SHIP_CITY"])
	require.Equal(t, "US", p["CUST_SHIP_COUNTRY"])
	require.Equal(t, "90210", p["CUST_SHIP_ZIP"])

	o.Shipping = &order.Address{FirstName: "Only", LastName: "Name"}
	p = payment.BuildParams(o, payment.Credentials{}, "ref", "", "Shop")
	require.False(t, p.Has("CUST_SHIP_NAME"), "an empty shipping address adds no shipping block")
}

func TestRequestBuilderBuild(t *testing.T) {
	f := newFixture(t, "https://sandbox.gateway.invalid")
	f.seed(t, "42", "49.99", "USD", "")
	b := &payment.RequestBuilder{
		Settings: f.settings,
		Store:    f.store,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	}

	req, err := b.Build(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "TFP-42-1700000000", req.Reference)
	require.Equal(t, payment.EnvSandbox, req.Environment)
	require.Equal(t, "https://shop.example/api/v1/payments/trustflowpay/checkout/42", req.CheckoutURL)
	require.Equal(t, "https://shop.example/api/v1/payments/trustflowpay/return", req.Params[payment.FieldReturnURL])
	require.Equal(t, "APP-SANDBOX", req.Params[payment.FieldAppID])
	require.Equal(t, "Ada Lovelace", req.Params["CUST_NAME"])
	require.True(t, payment.NewSigner(sandboxSecret, zerolog.Nop()).Verify(req.Params, req.Params[payment.FieldHash]))

	o := f.order(t, "42")
	require.Equal(t, req.Reference, o.MetaValue(payment.MetaReference))
	require.Equal(t, "APP-SANDBOX", o.MetaValue(payment.MetaAppID))
	require.Equal(t, "sandbox", o.MetaValue(payment.MetaEnvironment))
	stored, err := payment.DecodeParams([]byte(o.MetaValue(payment.MetaRequestParams)))
	require.NoError(t, err)
	require.Equal(t, req.Params, stored)
}

func TestRequestBuilderNewAttemptSupersedes(t *testing.T) {
	f := newFixture(t, "https://sandbox.gateway.invalid")
	f.settings.TestMode = false
	f.settings.ReferencePrefix = "SHOP"
	f.seed(t, "42", "49.99", "USD", "")
	clock := time.Unix(1700000000, 0)
	b := &payment.RequestBuilder{Settings: f.settings, Store: f.store, Logger: zerolog.Nop(), Now: func() time.Time { return clock }}

	first, err := b.Build(context.Background(), "42")
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := b.Build(context.Background(), "42")
	require.NoError(t, err)

	require.Equal(t, "SHOP-42-1700000000", first.Reference)
	require.Equal(t, "SHOP-42-1700000060", second.Reference)
	require.Equal(t, payment.EnvProduction, second.Environment)
	require.Equal(t, "APP-LIVE", second.Params[payment.FieldAppID])

	o := f.order(t, "42")
	require.Equal(t, second.Reference, o.MetaValue(payment.MetaReference))
	require.Equal(t, "production", o.MetaValue(payment.MetaEnvironment))
	require.True(t, payment.NewSigner(productionSecret, zerolog.Nop()).Verify(second.Params, second.Params[payment.FieldHash]))
}

func TestRequestBuilderRejects(t *testing.T) {
	f := newFixture(t, "https://sandbox.gateway.invalid")
	f.seed(t, "42", "49.99", "USD", "")
	require.NoError(t, f.store.MarkPaid(context.Background(), "42", "TXN"))
	b := &payment.RequestBuilder{Settings: f.settings, Store: f.store, Logger: zerolog.Nop()}

	_, err := b.Build(context.Background(), "42")
	require.ErrorIs(t, err, payment.ErrAlreadyPaid)
	require.Empty(t, f.order(t, "42").MetaValue(payment.MetaReference))

	_, err = b.Build(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}
