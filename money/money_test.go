package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeCurrency(t *testing.T) {
	code, ok := NormalizeCurrency(" eur ")
	assert.True(t, ok)
	assert.Equal(t, "EUR", code)

	for _, bad := range []string{"", "EU", "EURO", "ZZZ"} {
		assert.False(t, ValidCurrency(bad), bad)
	}
}

func TestScale(t *testing.T) {
	assert.Equal(t, int32(2), Scale("USD"))
	assert.Equal(t, int32(0), Scale("JPY"))
	assert.Equal(t, int32(2), Scale("nope"))
}

func TestPercentRoundsHalfUp(t *testing.T) {
	got := Percent(decimal.RequireFromString("10.05"), decimal.RequireFromString("50"))
	assert.Equal(t, "5.03", got.StringFixed(2))
}

func TestFormat(t *testing.T) {
	cases := []struct {
		amount string
		code   string
		want   string
	}{
		{"1234.5", "USD", "1,234.50 USD"},
		{"-1234567.891", "usd", "-1,234,567.89 USD"},
		{"12", "EUR", "12.00 EUR"},
		{"150000", "JPY", "150,000 JPY"},
		{"0", "", "0.00"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Format(decimal.RequireFromString(c.amount), c.code), c.amount)
	}
}
