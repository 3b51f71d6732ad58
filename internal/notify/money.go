package notify

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// NairaSymbol prefixes formatted amounts
const NairaSymbol = "₦"

// FormatNaira renders an amount as ₦1,234.50
func FormatNaira(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	amount = amount.Round(2)
	fixed := amount.StringFixed(2)
	whole := amount.IntPart()
	return sign + NairaSymbol + humanize.Comma(whole) + fixed[len(fixed)-3:]
}
