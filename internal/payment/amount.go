package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyDecimals = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "TWD": 0,
	"ISK": 0, "UGX": 0, "XAF": 0, "XOF": 0, "PYG": 0,
	"GNF": 0, "RWF": 0, "KMF": 0, "DJF": 0, "VUV": 0, "XPF": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "IQD": 3, "LYD": 3, "TND": 3,
}

const defaultDecimals int32 = 2

// CurrencyDecimals returns the number of minor-unit digits for an ISO 4217
// code. Unknown codes use two.
func CurrencyDecimals(currency string) int32 {
	if d, ok := currencyDecimals[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return d
	}
	return defaultDecimals
}

// ToMinorUnits converts a major-unit amount into integer minor units,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyDecimals(currency)).Round(0).IntPart()
}

// MinorUnitsFromFloat is ToMinorUnits for callers holding a float.
func MinorUnitsFromFloat(amount float64, currency string) int64 {
	return ToMinorUnits(decimal.NewFromFloat(amount), currency)
}
