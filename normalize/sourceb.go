package normalize

import (
	"context"
	"encoding/json"
	"time"

	"github.com/epic1st/repricer/pricing"
	"github.com/shopspring/decimal"
)

type sourceBOffer struct {
	SellerId  string          `json:"sellerId"`
	Price     decimal.Decimal `json:"price"`
	Condition string          `json:"condition"`
}

type sourceBEnvelope struct {
	EventType           string           `json:"eventType"`
	ItemId              string           `json:"itemId"`
	SellerId            string           `json:"sellerId"`
	Timestamp           string           `json:"timestamp"`
	CurrentBuyboxPrice  *decimal.Decimal `json:"currentBuyboxPrice"`
	CurrentBuyboxWinner string           `json:"currentBuyboxWinner"`
	Offers              []sourceBOffer   `json:"offers"`
}

// SourceB parses a marketplace-B webhook POST body into an OfferChange.
func SourceB(ctx context.Context, raw []byte, resolver OwnerResolver, now time.Time) (*pricing.OfferChange, DropReason) {
	var env sourceBEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, DropMalformedJSON
	}
	if env.ItemId == "" {
		return nil, DropMissingASIN
	}
	if len(env.Offers) == 0 {
		return nil, DropEmptyOffers
	}

	sku, ok := ownerSKU(ctx, resolver, env.ItemId, env.SellerId)
	if !ok {
		return nil, DropUnknownOwner
	}

	offers := make([]pricing.CompetitorOffer, 0, len(env.Offers))
	for _, o := range env.Offers {
		offers = append(offers, pricing.CompetitorOffer{
			SellerID:       o.SellerId,
			ListingPrice:   o.Price,
			IsBuyBoxWinner: o.SellerId == env.CurrentBuyboxWinner && env.CurrentBuyboxWinner != "",
			SubCondition:   o.Condition,
		})
	}

	var buyBoxWinnerID *string
	if env.CurrentBuyboxWinner != "" {
		id := env.CurrentBuyboxWinner
		buyBoxWinnerID = &id
	}
	buyBoxPrice := env.CurrentBuyboxPrice

	return &pricing.OfferChange{
		Source:           "B",
		ASIN:             env.ItemId,
		OurSellerID:      env.SellerId,
		SKU:              sku,
		CompetitorOffers: offers,
		BuyBoxWinnerID:   buyBoxWinnerID,
		TotalOffers:      len(offers),
		BuyBoxPrice:      buyBoxPrice,
		ReceivedAt:       now,
	}, ""
}

// ownerSKU looks up the SKU for an already-known seller ID. Source B
// supplies sellerId directly in the payload, so resolution here only
// needs to find the matching SKU, not the owning seller.
func ownerSKU(ctx context.Context, resolver OwnerResolver, asin, sellerID string) (string, bool) {
	resolvedSeller, sku, ok := resolver.ResolveOwner(ctx, asin, []string{sellerID})
	if !ok || resolvedSeller != sellerID {
		return "", false
	}
	return sku, true
}
