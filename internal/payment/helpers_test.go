package payment_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/order"
	"github.com/noah-isme/trustflowpay/internal/payment"
)

const (
	sandboxSecret    = "Sandbox-Secret-Key"
	productionSecret = "Production-Secret-Key"
)

func testSettings(baseURL string) payment.Settings {
	return payment.Settings{
		TestMode: true,
		Sandbox: payment.Credentials{
			Environment:  payment.EnvSandbox,
			BaseURL:      baseURL,
			AppID:        "APP-SANDBOX",
			SecretKey:    sandboxSecret,
			CurrencyCode: "840",
		},
		Production: payment.Credentials{
			Environment:  payment.EnvProduction,
			BaseURL:      "https://secure.gateway.invalid",
			AppID:        "APP-LIVE",
			SecretKey:    productionSecret,
			CurrencyCode: "840",
		},
		SuccessStatus: order.StatusProcessing,
		DisplayMode:   payment.DisplayRedirect,
		StoreName:     "Test Store",
		PublicBaseURL: "https://shop.example",
		Pages: payment.Pages{
			Checkout:     "https://shop.example/checkout",
			Confirmation: "https://shop.example/order-received/{order_id}",
			Pay:          "https://shop.example/order-pay/{order_id}",
			Cancel:       "https://shop.example/cart?cancelled={order_id}",
		},
	}
}

// fixture wires the payment components around an in-memory store.
type fixture struct {
	settings   payment.Settings
	store      *order.MemoryStore
	auth       payment.Authenticator
	reconciler *payment.Reconciler
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()
	settings := testSettings(baseURL)
	store := order.NewMemoryStore()
	logger := zerolog.Nop()
	return &fixture{
		settings:   settings,
		store:      store,
		auth:       payment.Authenticator{Settings: settings, Store: store, Logger: logger},
		reconciler: &payment.Reconciler{Store: store, SuccessStatus: settings.SuccessStatus, Logger: logger},
	}
}

// seed stores a pending order with a payment attempt under reference.
func (f *fixture) seed(t *testing.T, id, total, currency, reference string) {
	t.Helper()
	meta := map[string]string{}
	if reference != "" {
		meta[payment.MetaReference] = reference
		meta[payment.MetaAppID] = f.settings.Sandbox.AppID
		meta[payment.MetaEnvironment] = string(payment.EnvSandbox)
	}
	f.store.Put(order.Order{
		ID:       id,
		Status:   order.StatusPending,
		Total:    decimal.RequireFromString(total),
		Currency: currency,
		Billing:  order.Address{FirstName: "Ada", LastName: "Lovelace", Line1: "1 Analytical Way", City: "London", Country: "GB", Postcode: "N1", Email: "ada@example.com"},
		Meta:     meta,
	})
}

func (f *fixture) order(t *testing.T, id string) order.Order {
	t.Helper()
	o, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) notes(t *testing.T, id string) []order.Note {
	t.Helper()
	notes, err := f.store.Notes(context.Background(), id)
	require.NoError(t, err)
	return notes
}

// signed returns p with a HASH computed under secret.
func signed(p payment.Params, secret string) payment.Params {
	out := p.Clone()
	out[payment.FieldHash] = payment.NewSigner(secret, zerolog.Nop()).Sign(out)
	return out
}

func captured(reference string) payment.Params {
	return payment.Params{
		payment.FieldOrderID:         reference,
		payment.FieldResponseCode:    "000",
		payment.FieldStatus:          "Captured",
		payment.FieldTxnID:           "TXN-1",
		payment.FieldPGRefNum:        "PG-1",
		payment.FieldResponseMessage: "SUCCESS",
		payment.FieldAmount:          "4999",
	}
}
