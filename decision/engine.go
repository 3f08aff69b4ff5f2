// Package decision implements the repricing eligibility and
// self-competition gates (C4). It never returns an error for a business
// skip — callers get a RepricingDecision value, never an exception.
package decision

import (
	"github.com/epic1st/repricer/pricing"
)

// Outcome is the sum-type result the design notes call for: a decision
// is either "proceed" or a reason it was declined. There is no third
// "retry" case here — retry only applies to store-access errors, decided
// upstream of the engine (§4.3 step 2), not by the gates themselves.
type Outcome struct {
	ShouldReprice bool
	Reason        string
}

const reasonOK = "ok"

func proceed() Outcome { return Outcome{ShouldReprice: true, Reason: reasonOK} }
func skip(reason string) Outcome { return Outcome{ShouldReprice: false, Reason: reason} }

// Evaluate runs the six ordered gates from §4.4 against an already
// loaded ProductListing and Strategy. The first gate that fails wins;
// gates are not independently scored.
func Evaluate(oc *pricing.OfferChange, listing *pricing.ProductListing, strat *pricing.Strategy) Outcome {
	if listing == nil {
		return skip("product_not_found")
	}
	if listing.Status != pricing.StatusActive {
		return skip("inactive")
	}
	if listing.RepricingPaused {
		return skip("paused")
	}
	if listing.Quantity <= 0 {
		return skip("out_of_stock")
	}
	if listing.StrategyID == "" || strat == nil {
		return skip("strategy_missing")
	}
	if listing.MinPrice != nil && listing.MaxPrice != nil {
		if listing.MinPrice.GreaterThan(*listing.MaxPrice) || listing.MinPrice.Equal(*listing.MaxPrice) {
			return skip("no_price_room")
		}
	}

	if out := checkSelfCompetition(oc, listing, strat); out.Reason != "" {
		return out
	}

	return proceed()
}

// checkSelfCompetition implements gate 6, the defining gate. It returns
// a zero Outcome (empty Reason) when the gate passes, letting Evaluate
// fall through to proceed().
func checkSelfCompetition(oc *pricing.OfferChange, listing *pricing.ProductListing, strat *pricing.Strategy) Outcome {
	if oc.BuyBoxWinnerID != nil && *oc.BuyBoxWinnerID == oc.OurSellerID {
		return skip("self_competing_buybox")
	}

	nonOwn := oc.NonOwnOffers()
	soleSeller := len(nonOwn) == 0

	if soleSeller && !isOnlySellerStrategyAllowed(oc, listing) {
		return skip("sole_seller_trivial")
	}

	if strat.CompeteWith == pricing.CompeteLowestPrice && weHoldLowestPrice(oc, nonOwn) {
		return skip("self_competing_lowest")
	}
	if strat.CompeteWith == pricing.CompeteLowestFBAPrice && weHoldLowestFBAPrice(oc, nonOwn, listing.ItemCondition) {
		return skip("self_competing_fba_lowest")
	}

	return Outcome{}
}

// isOnlySellerStrategyAllowed reports whether, despite being the sole
// visible seller, the event is allowed to proceed because strategy
// selection will land on OnlySeller rather than a competitive strategy
// (§4.4: "sole_seller_trivial ... but only for competitive strategies;
// OnlySeller is allowed to proceed").
func isOnlySellerStrategyAllowed(oc *pricing.OfferChange, listing *pricing.ProductListing) bool {
	return pricing.SelectStrategy(oc, listing) == pricing.StrategyOnlySeller
}

func weHoldLowestPrice(oc *pricing.OfferChange, nonOwn []pricing.CompetitorOffer) bool {
	ourOffer, ok := findOwnOffer(oc)
	if !ok || len(nonOwn) == 0 {
		return false
	}
	lowest := nonOwn[0].EffectivePrice()
	for _, o := range nonOwn[1:] {
		if o.EffectivePrice().LessThan(lowest) {
			lowest = o.EffectivePrice()
		}
	}
	return ourOffer.EffectivePrice().LessThanOrEqual(lowest)
}

func weHoldLowestFBAPrice(oc *pricing.OfferChange, nonOwn []pricing.CompetitorOffer, itemCondition string) bool {
	ourOffer, ok := findOwnOffer(oc)
	if !ok || ourOffer.FulfillmentChannel != pricing.ChannelAmazon {
		return false
	}
	var lowestFound bool
	var lowest = ourOffer.EffectivePrice()
	for _, o := range nonOwn {
		if o.FulfillmentChannel != pricing.ChannelAmazon || o.SubCondition != itemCondition {
			continue
		}
		lowestFound = true
		if o.EffectivePrice().LessThan(lowest) {
			lowest = o.EffectivePrice()
		}
	}
	if !lowestFound {
		return false
	}
	return ourOffer.EffectivePrice().LessThanOrEqual(lowest)
}

func findOwnOffer(oc *pricing.OfferChange) (pricing.CompetitorOffer, bool) {
	for _, o := range oc.CompetitorOffers {
		if o.SellerID == oc.OurSellerID {
			return o, true
		}
	}
	return pricing.CompetitorOffer{}, false
}
