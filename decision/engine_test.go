package decision

import (
	"testing"

	"github.com/epic1st/repricer/pricing"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseListing() *pricing.ProductListing {
	return &pricing.ProductListing{
		ASIN: "X1", SellerID: "S1", SKU: "K1",
		Status:     pricing.StatusActive,
		Quantity:   5,
		StrategyID: "2",
	}
}

func baseStrategy() *pricing.Strategy {
	return &pricing.Strategy{StrategyID: "2", CompeteWith: pricing.CompeteMatchBuyBox}
}

func TestSelfCompetingBuybox(t *testing.T) {
	// S2: self-competing skip.
	listing := baseListing()
	strat := baseStrategy()
	winner := "S1"
	oc := &pricing.OfferChange{
		OurSellerID:    "S1",
		BuyBoxWinnerID: &winner,
		TotalOffers:    2,
		CompetitorOffers: []pricing.CompetitorOffer{
			{SellerID: "S1", ListingPrice: dec("28.00"), IsBuyBoxWinner: true},
			{SellerID: "S3", ListingPrice: dec("29.00")},
		},
	}

	out := Evaluate(oc, listing, strat)
	if out.ShouldReprice {
		t.Fatal("expected should_reprice = false")
	}
	if out.Reason != "self_competing_buybox" {
		t.Errorf("reason = %q, want self_competing_buybox", out.Reason)
	}
}

func TestGateOrdering(t *testing.T) {
	strat := baseStrategy()
	oc := &pricing.OfferChange{OurSellerID: "S1", TotalOffers: 0}

	t.Run("not_found", func(t *testing.T) {
		out := Evaluate(oc, nil, strat)
		if out.Reason != "product_not_found" {
			t.Errorf("reason = %q, want product_not_found", out.Reason)
		}
	})

	t.Run("inactive", func(t *testing.T) {
		l := baseListing()
		l.Status = pricing.StatusInactive
		out := Evaluate(oc, l, strat)
		if out.Reason != "inactive" {
			t.Errorf("reason = %q, want inactive", out.Reason)
		}
	})

	t.Run("paused", func(t *testing.T) {
		l := baseListing()
		l.RepricingPaused = true
		out := Evaluate(oc, l, strat)
		if out.Reason != "paused" {
			t.Errorf("reason = %q, want paused", out.Reason)
		}
	})

	t.Run("out_of_stock", func(t *testing.T) {
		l := baseListing()
		l.Quantity = 0
		out := Evaluate(oc, l, strat)
		if out.Reason != "out_of_stock" {
			t.Errorf("reason = %q, want out_of_stock", out.Reason)
		}
	})

	t.Run("strategy_missing", func(t *testing.T) {
		l := baseListing()
		l.StrategyID = ""
		out := Evaluate(oc, l, strat)
		if out.Reason != "strategy_missing" {
			t.Errorf("reason = %q, want strategy_missing", out.Reason)
		}
	})

	t.Run("no_price_room", func(t *testing.T) {
		l := baseListing()
		minMax := dec("10.00")
		l.MinPrice, l.MaxPrice = &minMax, &minMax
		out := Evaluate(oc, l, strat)
		if out.Reason != "no_price_room" {
			t.Errorf("reason = %q, want no_price_room", out.Reason)
		}
	})
}

func TestSoleSellerTrivialAllowsOnlySeller(t *testing.T) {
	listing := baseListing()
	strat := baseStrategy()
	oc := &pricing.OfferChange{
		OurSellerID: "S1",
		TotalOffers: 1,
		CompetitorOffers: []pricing.CompetitorOffer{
			{SellerID: "S1", ListingPrice: dec("20.00")},
		},
	}

	out := Evaluate(oc, listing, strat)
	if !out.ShouldReprice {
		t.Fatalf("expected proceed for sole-seller OnlySeller case, got skip %q", out.Reason)
	}
}

func TestSelfCompetingLowest(t *testing.T) {
	listing := baseListing()
	strat := &pricing.Strategy{StrategyID: "2", CompeteWith: pricing.CompeteLowestPrice}
	oc := &pricing.OfferChange{
		OurSellerID: "S1",
		TotalOffers: 2,
		CompetitorOffers: []pricing.CompetitorOffer{
			{SellerID: "S1", ListingPrice: dec("10.00")},
			{SellerID: "S2", ListingPrice: dec("15.00")},
		},
	}

	out := Evaluate(oc, listing, strat)
	if out.Reason != "self_competing_lowest" {
		t.Errorf("reason = %q, want self_competing_lowest", out.Reason)
	}
}
