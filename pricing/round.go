package pricing

import "github.com/shopspring/decimal"

// Round2 rounds to 2 decimal places half-up (half-away-from-zero, which
// is equivalent to half-up for the non-negative prices this engine deals
// in). Satisfies the P2 rounding invariant: new_price == round(new_price, 2).
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SameTo2DP reports whether a and b are equal once rounded to 2dp, used
// for the price_changed comparison and the §4.3 write-skip check.
func SameTo2DP(a, b decimal.Decimal) bool {
	return Round2(a).Equal(Round2(b))
}
