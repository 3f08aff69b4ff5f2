package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestChaseBuyBoxUndercut(t *testing.T) {
	// S1: ChaseBuyBox undercut.
	listing := &ProductListing{
		ASIN: "X1", SellerID: "S1", SKU: "K1",
		ListedPrice: decPtr("29.99"),
		MinPrice:    decPtr("20.00"),
		MaxPrice:    decPtr("50.00"),
		StrategyID:  "2",
		Status:      StatusActive,
		Quantity:    5,
	}
	strat := &Strategy{
		StrategyID:   "2",
		CompeteWith:  CompeteMatchBuyBox,
		BeatBy:       dec("-0.01"),
		MinPriceRule: RuleJumpToMin,
		MaxPriceRule: RuleJumpToMax,
	}
	winner := "S2"
	oc := &OfferChange{
		OurSellerID:    "S1",
		BuyBoxWinnerID: &winner,
		TotalOffers:    2,
		CompetitorOffers: []CompetitorOffer{
			{SellerID: "S2", ListingPrice: dec("26.50"), IsBuyBoxWinner: true},
			{SellerID: "S3", ListingPrice: dec("27.00")},
		},
	}

	q := Compute(oc, listing, strat)
	if q.Skip != "" {
		t.Fatalf("unexpected skip: %s", q.Skip)
	}
	if !q.NewPrice.Equal(dec("26.49")) {
		t.Errorf("new_price = %s, want 26.49", q.NewPrice)
	}
	if q.StrategyUsed != StrategyChaseBuyBox {
		t.Errorf("strategy_used = %s, want ChaseBuyBox", q.StrategyUsed)
	}
	cp := q.ToCalculatedPrice(oc, listing, fixedNow())
	if !cp.PriceChanged {
		t.Error("price_changed should be true")
	}
}

func TestBoundsClampToMin(t *testing.T) {
	// S3: bounds clamp to min.
	listing := &ProductListing{
		MinPrice: decPtr("25.00"),
		MaxPrice: decPtr("40.00"),
	}
	strat := &Strategy{
		CompeteWith:  CompeteLowestPrice,
		BeatBy:       dec("-0.05"),
		MinPriceRule: RuleJumpToMin,
		MaxPriceRule: RuleJumpToMax,
	}
	oc := &OfferChange{
		OurSellerID: "S1",
		TotalOffers: 2,
		CompetitorOffers: []CompetitorOffer{
			{SellerID: "S2", ListingPrice: dec("10.00")},
			{SellerID: "S3", ListingPrice: dec("15.00")},
		},
	}

	q := Compute(oc, listing, strat)
	if q.Skip != "" {
		t.Fatalf("unexpected skip: %s", q.Skip)
	}
	if !q.NewPrice.Equal(dec("25.00")) {
		t.Errorf("new_price = %s, want 25.00", q.NewPrice)
	}
}

func TestOnlySellerMean(t *testing.T) {
	// S4: OnlySeller mean, no competitors.
	listing := &ProductListing{
		MinPrice: decPtr("10.00"),
		MaxPrice: decPtr("20.00"),
	}
	strat := &Strategy{
		CompeteWith:  CompeteLowestPrice,
		MinPriceRule: RuleJumpToMin,
		MaxPriceRule: RuleJumpToMax,
	}
	oc := &OfferChange{OurSellerID: "S1", TotalOffers: 1}

	q := Compute(oc, listing, strat)
	if q.Skip != "" {
		t.Fatalf("unexpected skip: %s", q.Skip)
	}
	if !q.NewPrice.Equal(dec("15.00")) {
		t.Errorf("new_price = %s, want 15.00", q.NewPrice)
	}
	if q.StrategyUsed != StrategyOnlySeller {
		t.Errorf("strategy_used = %s, want OnlySeller", q.StrategyUsed)
	}
	if q.CompetitorPrice != nil {
		t.Error("competitor_price should be null for OnlySeller")
	}
}

func TestMaximiseProfitAlreadyCheaper(t *testing.T) {
	// S5: competitor not higher than our listed price -> skip.
	listing := &ProductListing{
		ListedPrice: decPtr("30.00"),
	}
	strat := &Strategy{CompeteWith: CompeteLowestPrice}
	oc := &OfferChange{
		OurSellerID: "S1",
		TotalOffers: 2,
		CompetitorOffers: []CompetitorOffer{
			{SellerID: "S2", ListingPrice: dec("25.00")},
		},
	}

	raw := ComputeRaw(StrategyMaximiseProfit, oc, listing, strat)
	if raw.Skip != SkipAlreadyCheaper {
		t.Errorf("skip = %q, want already_cheaper", raw.Skip)
	}
}

func TestB2BTiers(t *testing.T) {
	// S6: B2B tiers.
	listing := &ProductListing{
		IsB2B: true,
		B2BTiers: []B2BTier{
			{MinQuantity: 5, Price: dec("24.00")},
			{MinQuantity: 10, Price: dec("22.00")},
		},
	}
	beatBy := B2BRuleBeatBy
	low := B2BCompeteLow
	strat := &Strategy{
		BeatBy:        dec("-0.10"),
		B2BPriceRule:  &beatBy,
		B2BCompeteFor: &low,
	}
	competitorTiers := []B2BTier{
		{MinQuantity: 5, Price: dec("24.50")},
		{MinQuantity: 10, Price: dec("22.50")},
	}

	quotes := ComputeB2BTiers(listing, strat, competitorTiers)
	if len(quotes) != 2 {
		t.Fatalf("got %d tier quotes, want 2", len(quotes))
	}
	if !quotes[0].NewPrice.Equal(dec("24.40")) {
		t.Errorf("tier1 new_price = %s, want 24.40", quotes[0].NewPrice)
	}
	if !quotes[1].NewPrice.Equal(dec("22.40")) {
		t.Errorf("tier2 new_price = %s, want 22.40", quotes[1].NewPrice)
	}
}

func TestCompetitorSelectionTieBreak(t *testing.T) {
	offers := []CompetitorOffer{
		{SellerID: "S9", ListingPrice: dec("10.00")},
		{SellerID: "S2", ListingPrice: dec("10.00")},
	}
	best, ok := selectCompetitor(offers, CompeteLowestPrice, "")
	if !ok {
		t.Fatal("expected a competitor")
	}
	if best.SellerID != "S2" {
		t.Errorf("tie-break seller = %s, want S2 (lexicographically smallest)", best.SellerID)
	}
}

func TestNoFBACompetitorSkipsWithSpecificReason(t *testing.T) {
	listing := &ProductListing{
		MinPrice: decPtr("10.00"),
		MaxPrice: decPtr("20.00"),
	}
	strat := &Strategy{CompeteWith: CompeteLowestFBAPrice, BeatBy: dec("-0.01")}
	oc := &OfferChange{
		OurSellerID: "S1",
		TotalOffers: 2,
		ItemCondition: "New",
		CompetitorOffers: []CompetitorOffer{
			{SellerID: "S2", ListingPrice: dec("12.00"), FulfillmentChannel: ChannelMerchant, SubCondition: "New"},
		},
	}

	raw := ComputeRaw(StrategyChaseBuyBox, oc, listing, strat)
	if raw.Skip != SkipNoFBACompetitor {
		t.Errorf("skip = %q, want no_fba_competitor", raw.Skip)
	}
}

func TestRound2HalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005": "1.01",
		"1.004": "1.00",
		"1.015": "1.02",
	}
	for in, want := range cases {
		got := Round2(dec(in))
		if got.StringFixed(2) != want {
			t.Errorf("Round2(%s) = %s, want %s", in, got.StringFixed(2), want)
		}
	}
}
