package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierQuote is the result of pricing one B2B tier.
type TierQuote struct {
	MinQuantity     int
	NewPrice        decimal.Decimal
	CompetitorPrice *decimal.Decimal
	Skip            SkipReason
	Violation       *BoundsViolation
}

// selectCompetitorTier implements the LOW/HIGH tier matching rule from
// §4.5: LOW picks the competitor tier whose min_quantity is the largest
// that is <= ours; HIGH picks the smallest that is >= ours.
func selectCompetitorTier(ourMinQty int, competitorTiers []B2BTier, compete B2BCompeteFor) (*B2BTier, bool) {
	var best *B2BTier
	for i := range competitorTiers {
		t := &competitorTiers[i]
		switch compete {
		case B2BCompeteLow:
			if t.MinQuantity <= ourMinQty && (best == nil || t.MinQuantity > best.MinQuantity) {
				best = t
			}
		case B2BCompeteHigh:
			if t.MinQuantity >= ourMinQty && (best == nil || t.MinQuantity < best.MinQuantity) {
				best = t
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// ComputeB2BTiers prices every tier of a listing independently (§4.5: "a
// failure on one tier logs and continues with remaining tiers"). The
// caller supplies the competitor's tiered offer to compete against, if
// any was present in the OfferChange (not every source payload carries
// B2B data).
func ComputeB2BTiers(listing *ProductListing, strat *Strategy, competitorTiers []B2BTier) []TierQuote {
	if !listing.IsB2B || len(listing.B2BTiers) == 0 {
		return nil
	}
	compete := B2BCompeteLow
	if strat.B2BCompeteFor != nil {
		compete = *strat.B2BCompeteFor
	}
	rule := B2BRuleBeatBy
	if strat.B2BPriceRule != nil {
		rule = *strat.B2BPriceRule
	}

	quotes := make([]TierQuote, 0, len(listing.B2BTiers))
	for _, tier := range listing.B2BTiers {
		q := computeOneTier(listing, tier, strat, compete, rule, competitorTiers)
		quotes = append(quotes, q)
	}
	return quotes
}

func computeOneTier(listing *ProductListing, tier B2BTier, strat *Strategy, compete B2BCompeteFor, rule B2BPriceRule, competitorTiers []B2BTier) TierQuote {
	competitorTier, ok := selectCompetitorTier(tier.MinQuantity, competitorTiers, compete)
	if !ok {
		return TierQuote{MinQuantity: tier.MinQuantity, Skip: SkipNoValidCompetitor}
	}

	var raw decimal.Decimal
	switch rule {
	case B2BRuleAverage:
		raw = tier.Price.Add(competitorTier.Price).Div(decimal.NewFromInt(2))
	case B2BRuleBeatBy:
		raw = competitorTier.Price.Add(strat.BeatBy)
	default:
		raw = competitorTier.Price.Add(strat.BeatBy)
	}
	raw = Round2(raw)

	minPrice, maxPrice, defaultPrice := tier.MinPrice, tier.MaxPrice, tier.DefaultPrice
	if minPrice == nil {
		minPrice = listing.MinPrice
	}
	if maxPrice == nil {
		maxPrice = listing.MaxPrice
	}
	if defaultPrice == nil {
		defaultPrice = listing.DefaultPrice
	}
	competitorPrice := competitorTier.Price
	clamp := Clamp(raw, minPrice, maxPrice, defaultPrice, &competitorPrice, strat.MinPriceRule, strat.MaxPriceRule)
	if clamp.Skip != "" {
		return TierQuote{MinQuantity: tier.MinQuantity, Skip: clamp.Skip, Violation: clamp.Violation, CompetitorPrice: &competitorPrice}
	}
	return TierQuote{MinQuantity: tier.MinQuantity, NewPrice: clamp.Final, CompetitorPrice: &competitorPrice}
}

// ToCalculatedPrice materializes a successful TierQuote into a per-tier
// sub-record (§8 supplemented feature: stored under field
// "<sku>:tier:<min_quantity>").
func (tq TierQuote) ToCalculatedPrice(oc *OfferChange, listing *ProductListing, tierListedPrice decimal.Decimal, now time.Time) CalculatedPrice {
	mq := tq.MinQuantity
	return CalculatedPrice{
		SellerID:        oc.OurSellerID,
		SKU:             listing.SKU,
		ASIN:            listing.ASIN,
		NewPrice:        tq.NewPrice,
		OldPrice:        tierListedPrice,
		StrategyUsed:    string(StrategyChaseBuyBox),
		StrategyID:      listing.StrategyID,
		CompetitorPrice: tq.CompetitorPrice,
		CalculatedAt:    now,
		PriceChanged:    !SameTo2DP(tq.NewPrice, tierListedPrice),
		TierMinQuantity: &mq,
	}
}
