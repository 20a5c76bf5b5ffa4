package payment_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/payment"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"49.99", "USD", 4999},
		{"10", "USD", 1000},
		{"19.999", "USD", 2000},
		{"0.005", "USD", 1},
		{"-0.005", "USD", -1},
		{"49.99", "usd", 4999},
		{"1000", "JPY", 1000},
		{"1500.5", "JPY", 1501},
		{"1.2345", "KWD", 1235},
		{"12.5", "BHD", 12500},
		{"7.25", "XYZ", 725},
	}
	for _, tc := range cases {
		t.Run(tc.amount+" "+tc.currency, func(t *testing.T) {
			got := payment.ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCurrencyDecimals(t *testing.T) {
	require.EqualValues(t, 0, payment.CurrencyDecimals("jpy"))
	require.EqualValues(t, 3, payment.CurrencyDecimals(" OMR "))
	require.EqualValues(t, 2, payment.CurrencyDecimals("EUR"))
	require.EqualValues(t, 2, payment.CurrencyDecimals(""))
}

func TestMinorUnitsFromFloat(t *testing.T) {
	require.EqualValues(t, 4999, payment.MinorUnitsFromFloat(49.99, "USD"))
	require.EqualValues(t, 1235, payment.MinorUnitsFromFloat(1.2345, "KWD"))
}
