package financials

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"-5", "$0.00"},
		{"0", "$0.00"},
		{"0.0000000004", "$0.000000000400"},
		{"0.000000999", "$0.000000999000"},
		{"0.000001", "$0.00000100"},
		{"0.0042", "$0.00420000"},
		{"0.009999", "$0.00999900"},
		{"0.01", "$0.01"},
		{"1.5", "$1.50"},
		{"999.99", "$999.99"},
		{"1000", "$1.00K"},
		{"2450", "$2.45K"},
		{"999999", "$1000.00K"},
		{"1000000", "$1.00M"},
		{"3520000", "$3.52M"},
		{"1000000000", "$1.00B"},
		{"12340000000", "$12.34B"},
	}

	for _, tc := range cases {
		got := FormatUSD(decimal.RequireFromString(tc.value))
		if got != tc.want {
			t.Errorf("FormatUSD(%s) = %q, want %q", tc.value, got, tc.want)
		}
	}
}
