package financials

import "github.com/shopspring/decimal"

var (
	usdMicroThreshold = decimal.RequireFromString("0.000001")
	usdCentThreshold  = decimal.RequireFromString("0.01")
	usdThousand       = decimal.NewFromInt(1_000)
	usdMillion        = decimal.NewFromInt(1_000_000)
	usdBillion        = decimal.NewFromInt(1_000_000_000)
)

// FormatUSD renders a USD amount the way the trading UI displays it.
// Sub-cent prices keep enough precision to distinguish micro-priced shares;
// large amounts collapse to K/M/B suffixes at two decimals. Zero and
// negative amounts render as "$0.00".
func FormatUSD(v decimal.Decimal) string {
	if v.LessThanOrEqual(decimal.Zero) {
		return "$0.00"
	}
	if v.LessThan(usdMicroThreshold) {
		return "$" + v.StringFixed(12)
	}
	if v.LessThan(usdCentThreshold) {
		return "$" + v.StringFixed(8)
	}
	if v.GreaterThanOrEqual(usdBillion) {
		return "$" + v.Div(usdBillion).StringFixed(2) + "B"
	}
	if v.GreaterThanOrEqual(usdMillion) {
		return "$" + v.Div(usdMillion).StringFixed(2) + "M"
	}
	if v.GreaterThanOrEqual(usdThousand) {
		return "$" + v.Div(usdThousand).StringFixed(2) + "K"
	}
	return "$" + v.StringFixed(2)
}
