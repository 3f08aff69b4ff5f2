package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyName identifies which concrete strategy produced a price, for
// the CalculatedPrice.StrategyUsed field.
type StrategyName string

const (
	StrategyChaseBuyBox    StrategyName = "ChaseBuyBox"
	StrategyMaximiseProfit StrategyName = "MaximiseProfit"
	StrategyOnlySeller     StrategyName = "OnlySeller"
)

// SelectStrategy implements §4.5 strategy selection, run after the
// decision engine has already accepted the event.
func SelectStrategy(oc *OfferChange, listing *ProductListing) StrategyName {
	nonOwn := oc.NonOwnOffers()
	if len(nonOwn) == 0 || oc.TotalOffers <= 1 {
		return StrategyOnlySeller
	}
	if oc.BuyBoxWinnerID != nil && *oc.BuyBoxWinnerID == oc.OurSellerID && !listing.IsB2B {
		return StrategyMaximiseProfit
	}
	return StrategyChaseBuyBox
}

// selectCompetitor implements §4.5 competitor selection for a given
// compete_with mode. Ties are broken by the lexicographically smallest
// seller_id (§9 open question (a)).
func selectCompetitor(offers []CompetitorOffer, mode CompeteWith, itemCondition string) (*CompetitorOffer, bool) {
	var candidates []CompetitorOffer
	switch mode {
	case CompeteLowestPrice:
		candidates = offers
	case CompeteLowestFBAPrice:
		for _, o := range offers {
			if o.FulfillmentChannel == ChannelAmazon && o.SubCondition == itemCondition {
				candidates = append(candidates, o)
			}
		}
	case CompeteMatchBuyBox:
		for _, o := range offers {
			if o.IsBuyBoxWinner {
				candidates = append(candidates, o)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].EffectivePrice(), candidates[j].EffectivePrice()
		if pi.Equal(pj) {
			return candidates[i].SellerID < candidates[j].SellerID
		}
		return pi.LessThan(pj)
	})
	best := candidates[0]
	return &best, true
}

// RawPriceResult is the pre-clamp output of a strategy's raw price
// computation, or a skip reason.
type RawPriceResult struct {
	Raw             decimal.Decimal
	CompetitorPrice *decimal.Decimal
	Skip            SkipReason
}

// ComputeRaw implements §4.5 raw price computation for the strategy named
// by SelectStrategy.
func ComputeRaw(name StrategyName, oc *OfferChange, listing *ProductListing, strat *Strategy) RawPriceResult {
	switch name {
	case StrategyOnlySeller:
		if listing.DefaultPrice != nil {
			return RawPriceResult{Raw: *listing.DefaultPrice}
		}
		if listing.MinPrice != nil && listing.MaxPrice != nil {
			mean := listing.MinPrice.Add(*listing.MaxPrice).Div(decimal.NewFromInt(2))
			return RawPriceResult{Raw: mean}
		}
		return RawPriceResult{Skip: SkipNoDefault}

	case StrategyMaximiseProfit:
		competitor, ok := selectCompetitor(oc.NonOwnOffers(), strat.CompeteWith, oc.ItemCondition)
		if !ok {
			return RawPriceResult{Skip: noCompetitorSkipReason(strat.CompeteWith)}
		}
		price := competitor.EffectivePrice()
		if listing.ListedPrice == nil || !price.GreaterThan(*listing.ListedPrice) {
			return RawPriceResult{Skip: SkipAlreadyCheaper}
		}
		return RawPriceResult{Raw: price, CompetitorPrice: &price}

	case StrategyChaseBuyBox:
		fallthrough
	default:
		competitor, ok := selectCompetitor(oc.NonOwnOffers(), strat.CompeteWith, oc.ItemCondition)
		if !ok {
			return RawPriceResult{Skip: noCompetitorSkipReason(strat.CompeteWith)}
		}
		price := competitor.EffectivePrice()
		raw := price.Add(strat.BeatBy)
		return RawPriceResult{Raw: raw, CompetitorPrice: &price}
	}
}

// noCompetitorSkipReason resolves §9 open question (b): when compete_with
// is LOWEST_FBA_PRICE and no FBA-channel competitor exists, skip with the
// more specific "no_fba_competitor" rather than falling through to a
// LOWEST_PRICE-style search.
func noCompetitorSkipReason(mode CompeteWith) SkipReason {
	if mode == CompeteLowestFBAPrice {
		return SkipNoFBACompetitor
	}
	return SkipNoValidCompetitor
}

// Quote is the fully computed, pre-write result for the standard
// (non-tiered) price, ready for the orchestrator to persist or skip.
type Quote struct {
	StrategyUsed    StrategyName
	NewPrice        decimal.Decimal
	CompetitorPrice *decimal.Decimal
	Skip            SkipReason
	Violation       *BoundsViolation
}

// Compute runs strategy selection, raw computation, and bounds clamping
// for the standard listing-level price. Callers must have already run
// the decision engine and confirmed should_reprice.
func Compute(oc *OfferChange, listing *ProductListing, strat *Strategy) Quote {
	name := SelectStrategy(oc, listing)
	raw := ComputeRaw(name, oc, listing, strat)
	if raw.Skip != "" {
		return Quote{StrategyUsed: name, Skip: raw.Skip}
	}
	rounded := Round2(raw.Raw)
	clamp := Clamp(rounded, listing.MinPrice, listing.MaxPrice, listing.DefaultPrice, raw.CompetitorPrice, strat.MinPriceRule, strat.MaxPriceRule)
	if clamp.Skip != "" {
		return Quote{StrategyUsed: name, Skip: clamp.Skip, Violation: clamp.Violation, CompetitorPrice: raw.CompetitorPrice}
	}
	return Quote{StrategyUsed: name, NewPrice: clamp.Final, CompetitorPrice: raw.CompetitorPrice}
}

// ToCalculatedPrice materializes a Quote into the stored record shape.
func (q Quote) ToCalculatedPrice(oc *OfferChange, listing *ProductListing, now time.Time) CalculatedPrice {
	old := decimal.Zero
	if listing.ListedPrice != nil {
		old = *listing.ListedPrice
	}
	return CalculatedPrice{
		SellerID:        oc.OurSellerID,
		SKU:             listing.SKU,
		ASIN:            listing.ASIN,
		NewPrice:        q.NewPrice,
		OldPrice:        old,
		StrategyUsed:    string(q.StrategyUsed),
		StrategyID:      listing.StrategyID,
		CompetitorPrice: q.CompetitorPrice,
		CalculatedAt:    now,
		PriceChanged:    !SameTo2DP(q.NewPrice, old),
	}
}
