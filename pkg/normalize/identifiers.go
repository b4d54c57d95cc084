package normalize

import (
	"regexp"
	"strings"
)

var isoCurrency = regexp.MustCompile(`(?i)\b(ARS|USD|EUR|BRL|UYU|CLP|PYG|BOB|GBP)\b`)

// currency names and symbols as they appear on Argentine invoices
var currencyNames = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`(?i)u\$s|us\$|d[óo]lar`), "USD"},
	{regexp.MustCompile(`(?i)euro|€`), "EUR"},
	{regexp.MustCompile(`(?i)reales?\b|r\$`), "BRL"},
	{regexp.MustCompile(`(?i)\bpesos?\b|ar\$|^\s*\$\s*$`), "ARS"},
}

// CurrencyCode finds the ISO 4217 code named by a free-form answer such as
// "Pesos argentinos (ARS)" or "U$S". It reports false when none is named.
func CurrencyCode(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	if m := isoCurrency.FindStringSubmatch(*raw); m != nil {
		return strings.ToUpper(m[1]), true
	}
	for _, n := range currencyNames {
		if n.re.MatchString(*raw) {
			return n.code, true
		}
	}
	return "", false
}

var cuitPattern = regexp.MustCompile(`\b(\d{2})[-\s.]?(\d{8})[-\s.]?(\d)\b`)

// CUIT finds a CUIT/CUIL number in raw and returns it as NN-NNNNNNNN-N.
func CUIT(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	m := cuitPattern.FindStringSubmatch(*raw)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + "-" + m[3], true
}
