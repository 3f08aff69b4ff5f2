package pricing

import "github.com/shopspring/decimal"

// SkipReason is a structured reason a strategy or bounds pass declined to
// produce a price. It never crosses a component boundary as an error —
// decision/orchestrator consume it as a value (§9 design notes).
type SkipReason string

const (
	SkipNoValidCompetitor  SkipReason = "no_valid_competitor"
	SkipNoFBACompetitor    SkipReason = "no_fba_competitor"
	SkipAlreadyCheaper     SkipReason = "already_cheaper"
	SkipNoDefault          SkipReason = "no_default"
	SkipBelowMinNoAction   SkipReason = "below_min_no_action"
	SkipAboveMaxNoAction   SkipReason = "above_max_no_action"
	SkipBoundsViolation    SkipReason = "bounds_violation"
	SkipRuleMissingDefault SkipReason = "rule_missing_default"
	SkipRuleMissingCompetitor SkipReason = "rule_missing_competitor"
)

// BoundsViolation carries the {calculated, min, max} warning payload
// required by §4.5/§7 when a clamp rule still produces an out-of-bounds
// final price.
type BoundsViolation struct {
	Calculated decimal.Decimal
	Min        *decimal.Decimal
	Max        *decimal.Decimal
}

// ClampResult is the outcome of the bounds-clamping pure function.
type ClampResult struct {
	Final    decimal.Decimal
	Skip     SkipReason
	Violation *BoundsViolation
}

// Clamp applies the bounds-clamping sub-engine (§4.5) to a raw price.
// It is a pure function: (raw, bounds, rule, default, competitor) -> final-or-skip.
func Clamp(raw decimal.Decimal, minPrice, maxPrice, defaultPrice, competitorPrice *decimal.Decimal, minRule, maxRule PriceRule) ClampResult {
	final := raw
	var rule PriceRule
	var triggered bool

	switch {
	case minPrice != nil && raw.LessThan(*minPrice):
		rule, triggered = minRule, true
	case maxPrice != nil && raw.GreaterThan(*maxPrice):
		rule, triggered = maxRule, true
	}

	if triggered {
		switch rule {
		case RuleJumpToMin:
			final = *minPrice
		case RuleJumpToMax:
			final = *maxPrice
		case RuleJumpToAvg:
			if minPrice == nil || maxPrice == nil {
				return ClampResult{Skip: SkipBoundsViolation}
			}
			final = minPrice.Add(*maxPrice).Div(decimal.NewFromInt(2))
		case RuleDefaultPrice:
			if defaultPrice == nil {
				return ClampResult{Skip: SkipRuleMissingDefault}
			}
			final = *defaultPrice
		case RuleMatchCompetitor:
			if competitorPrice == nil {
				return ClampResult{Skip: SkipRuleMissingCompetitor}
			}
			final = *competitorPrice
		case RuleDoNothing:
			if minPrice != nil && raw.LessThan(*minPrice) {
				return ClampResult{Skip: SkipBelowMinNoAction}
			}
			return ClampResult{Skip: SkipAboveMaxNoAction}
		default:
			return ClampResult{Skip: SkipBoundsViolation}
		}
	}

	final = Round2(final)

	belowMin := minPrice != nil && final.LessThan(*minPrice)
	aboveMax := maxPrice != nil && final.GreaterThan(*maxPrice)
	if belowMin || aboveMax {
		return ClampResult{
			Skip: SkipBoundsViolation,
			Violation: &BoundsViolation{
				Calculated: final,
				Min:        minPrice,
				Max:        maxPrice,
			},
		}
	}

	return ClampResult{Final: final}
}
