// Package normalize turns raw extracted strings into canonical values.
// Amounts follow the Argentine convention: "." groups thousands and ","
// separates decimals.
package normalize

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-extractor/pkg/common"
)

// currency markers stripped from the front of an amount, longest first
var currencyPrefixes = []string{"AR$", "ARS", "$"}

var errEmptyAmount = errors.New("empty amount")

// ParseCurrency converts an Argentine-formatted amount such as "$1.234,56"
// into a decimal. Every "." is dropped, so "12.345" is 12345, not 12.345.
func ParseCurrency(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(strings.ToUpper(cleaned), p) {
			cleaned = strings.TrimSpace(cleaned[len(p):])
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, common.New(common.KindNormalization, "normalize.currency", errEmptyAmount)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, common.New(common.KindNormalization, "normalize.currency", err)
	}
	return d, nil
}

// Currency is the lenient form of ParseCurrency: nil, empty and unparseable
// input all report no value.
func Currency(raw *string) (decimal.Decimal, bool) {
	if raw == nil {
		return decimal.Zero, false
	}
	d, err := ParseCurrency(*raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// NullCurrency wraps Currency for nullable columns.
func NullCurrency(raw *string) decimal.NullDecimal {
	d, ok := Currency(raw)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}
