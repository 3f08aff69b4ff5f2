package pricing

import "testing"

func TestClampRules(t *testing.T) {
	minP, maxP, defP := decPtr("10.00"), decPtr("20.00"), decPtr("12.00")

	tests := []struct {
		name     string
		raw      string
		minRule  PriceRule
		maxRule  PriceRule
		wantSkip SkipReason
		want     string
	}{
		{"jump_to_min", "5.00", RuleJumpToMin, RuleJumpToMax, "", "10.00"},
		{"jump_to_max", "25.00", RuleJumpToMin, RuleJumpToMax, "", "20.00"},
		{"jump_to_avg_below", "5.00", RuleJumpToAvg, RuleJumpToMax, "", "15.00"},
		{"default_price_below", "5.00", RuleDefaultPrice, RuleJumpToMax, "", "12.00"},
		{"do_nothing_below", "5.00", RuleDoNothing, RuleJumpToMax, SkipBelowMinNoAction, ""},
		{"in_bounds", "15.00", RuleJumpToMin, RuleJumpToMax, "", "15.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clamp(dec(tt.raw), minP, maxP, defP, nil, tt.minRule, tt.maxRule)
			if tt.wantSkip != "" {
				if result.Skip != tt.wantSkip {
					t.Fatalf("skip = %q, want %q", result.Skip, tt.wantSkip)
				}
				return
			}
			if result.Skip != "" {
				t.Fatalf("unexpected skip: %s", result.Skip)
			}
			if !result.Final.Equal(dec(tt.want)) {
				t.Errorf("final = %s, want %s", result.Final, tt.want)
			}
		})
	}
}

func TestClampStillOutOfBoundsIsViolation(t *testing.T) {
	minP, maxP := decPtr("10.00"), decPtr("20.00")
	result := Clamp(dec("5.00"), minP, maxP, nil, nil, RuleJumpToAvg, RuleJumpToMax)
	// jump_to_avg needs both bounds; here it succeeds at 15.00, in bounds.
	if result.Skip != "" {
		t.Fatalf("unexpected skip: %s", result.Skip)
	}

	// Force an out-of-bounds rule outcome via MATCH_COMPETITOR pointing
	// outside [min, max].
	competitor := dec("99.00")
	result2 := Clamp(dec("5.00"), minP, maxP, nil, &competitor, RuleMatchCompetitor, RuleJumpToMax)
	if result2.Skip != SkipBoundsViolation {
		t.Fatalf("skip = %q, want bounds_violation", result2.Skip)
	}
	if result2.Violation == nil {
		t.Fatal("expected a violation payload")
	}
	if !result2.Violation.Calculated.Equal(dec("99.00")) {
		t.Errorf("violation.Calculated = %s, want 99.00", result2.Violation.Calculated)
	}
}
