package gateways

import (
	"strings"

	"github.com/shopspring/decimal"

	"schoolfinance_backend/internals/features/finance/finerr"
)

// ISO 4217 minor-unit exponents for the currencies schools bill in.
var minorUnitExponent = map[string]int32{
	"IDR": 0,
	"UGX": 0,
	"RWF": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"KES": 2,
	"TZS": 2,
	"NGN": 2,
	"GHS": 2,
	"ZAR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"MYR": 2,
	"SGD": 2,
	"PHP": 2,
	"BHD": 3,
	"KWD": 3,
}

func Exponent(currency string) (int32, bool) {
	e, ok := minorUnitExponent[strings.ToUpper(strings.TrimSpace(currency))]
	return e, ok
}

// ToMinorUnits converts a major-unit amount to the provider's integer
// representation. Amounts that do not fit the currency exactly are rejected.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, ok := Exponent(currency)
	if !ok {
		return 0, finerr.Validation("unsupported currency %q", currency)
	}
	if !amount.IsPositive() {
		return 0, finerr.Validation("amount must be greater than zero")
	}
	minor := amount.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, finerr.Validation("amount %s has more precision than %s allows", amount.String(), strings.ToUpper(currency))
	}
	return minor.IntPart(), nil
}

func FromMinorUnits(minor int64, currency string) (decimal.Decimal, error) {
	exp, ok := Exponent(currency)
	if !ok {
		return decimal.Zero, finerr.Validation("unsupported currency %q", currency)
	}
	return decimal.New(minor, -exp), nil
}
