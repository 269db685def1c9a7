// Package money validates currency codes and rounds and formats amounts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCurrency upper-cases code and reports whether it is a recognised ISO 4217 code.
func NormalizeCurrency(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return code, false
	}
	if _, err := currency.ParseISO(code); err != nil {
		return code, false
	}
	return code, true
}

func ValidCurrency(code string) bool {
	_, ok := NormalizeCurrency(code)
	return ok
}

// Scale is the number of minor-unit digits for code. Unknown codes use 2.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns d * rate / 100, rounded to cents.
func Percent(d, rate decimal.Decimal) decimal.Decimal {
	return d.Mul(rate).Div(hundred).Round(2)
}

// Format renders amount with thousands separators and the currency's minor
// unit scale, followed by the code: "1,234.50 USD".
func Format(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	scale := Scale(code)
	s := amount.StringFixed(scale)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	if code != "" {
		b.WriteByte(' ')
		b.WriteString(code)
	}
	return b.String()
}
