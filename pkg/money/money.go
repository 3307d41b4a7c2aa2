package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are the ISO 4217 codes whose smallest unit equals one
// full unit, so the gateway expects whole amounts rather than hundredths.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// IsZeroDecimal reports whether the currency has no fractional unit for
// gateway amount purposes.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// ToGatewayAmount converts a decimal amount into the gateway's minor-unit
// integer representation. Callers validate that amounts are positive before
// calling; every amount sent to the gateway must pass through here so line
// items, fees, discounts, and shipping all share the same unit.
func ToGatewayAmount(amount decimal.Decimal, currency string) int64 {
	if IsZeroDecimal(currency) {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromGatewayAmount converts a gateway minor-unit integer back to a decimal
// amount. Used when reconstructing orders from gateway line items.
func FromGatewayAmount(amount int64, currency string) decimal.Decimal {
	if IsZeroDecimal(currency) {
		return decimal.NewFromInt(amount)
	}
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100))
}
