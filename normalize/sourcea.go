package normalize

import (
	"context"
	"encoding/json"
	"time"

	"github.com/epic1st/repricer/pricing"
	"github.com/shopspring/decimal"
)

// sourceAMoney mirrors the {Amount, CurrencyCode} shape used throughout
// the source-A envelope for every price field.
type sourceAMoney struct {
	Amount       string `json:"Amount"`
	CurrencyCode string `json:"CurrencyCode"`
}

func (m *sourceAMoney) decimal() (decimal.Decimal, bool) {
	if m == nil || m.Amount == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

type sourceAOffer struct {
	SellerId           string        `json:"SellerId"`
	SubCondition        string        `json:"SubCondition"`
	ListingPrice         sourceAMoney  `json:"ListingPrice"`
	LandedPrice          *sourceAMoney `json:"LandedPrice"`
	IsBuyBoxWinner       bool          `json:"IsBuyBoxWinner"`
	FulfillmentChannel  string        `json:"FulfillmentChannel"`
}

type sourceAEnvelope struct {
	NotificationType string `json:"NotificationType"`
	Payload          struct {
		OfferChangeTrigger struct {
			MarketplaceId     string `json:"MarketplaceId"`
			ASIN              string `json:"ASIN"`
			ItemCondition     string `json:"ItemCondition"`
			TimeOfOfferChange string `json:"TimeOfOfferChange"`
		} `json:"OfferChangeTrigger"`
		Summary struct {
			NumberOfOffers []struct {
				Condition          string `json:"condition"`
				FulfillmentChannel string `json:"fulfillmentChannel"`
				OfferCount         int    `json:"offerCount"`
			} `json:"NumberOfOffers"`
			LowestPrices []struct {
				Condition          string       `json:"condition"`
				FulfillmentChannel string       `json:"fulfillmentChannel"`
				ListingPrice       sourceAMoney `json:"ListingPrice"`
			} `json:"LowestPrices"`
			BuyBoxPrices []struct {
				Condition    string       `json:"condition"`
				ListingPrice sourceAMoney `json:"ListingPrice"`
				SellerId     string       `json:"sellerId"`
			} `json:"BuyBoxPrices"`
		} `json:"Summary"`
		Offers []sourceAOffer `json:"Offers"`
	} `json:"Payload"`
}

// SourceA parses a marketplace-A queue notification into an OfferChange.
// A non-empty DropReason means the event should be dropped (and the
// source message acked, not retried) without producing a record.
func SourceA(ctx context.Context, raw []byte, resolver OwnerResolver, now time.Time) (*pricing.OfferChange, DropReason) {
	var env sourceAEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, DropMalformedJSON
	}
	asin := env.Payload.OfferChangeTrigger.ASIN
	if asin == "" {
		return nil, DropMissingASIN
	}
	if len(env.Payload.Offers) == 0 {
		return nil, DropEmptyOffers
	}

	offers := make([]pricing.CompetitorOffer, 0, len(env.Payload.Offers))
	candidateSellers := make([]string, 0, len(env.Payload.Offers))
	for _, o := range env.Payload.Offers {
		listing, ok := o.ListingPrice.decimal()
		if !ok {
			continue
		}
		var landed *decimal.Decimal
		if l, ok := o.LandedPrice.decimal(); ok {
			landed = &l
		}
		offers = append(offers, pricing.CompetitorOffer{
			SellerID:           o.SellerId,
			ListingPrice:       listing,
			LandedPrice:        landed,
			FulfillmentChannel: pricing.FulfillmentChannel(o.FulfillmentChannel),
			IsBuyBoxWinner:     o.IsBuyBoxWinner,
			SubCondition:       o.SubCondition,
		})
		candidateSellers = append(candidateSellers, o.SellerId)
	}

	sellerID, sku, ok := resolver.ResolveOwner(ctx, asin, candidateSellers)
	if !ok {
		return nil, DropUnknownOwner
	}

	var buyBoxWinnerID *string
	for _, o := range offers {
		if o.IsBuyBoxWinner {
			id := o.SellerID
			buyBoxWinnerID = &id
			break
		}
	}

	totalOffers := 0
	if len(env.Payload.Summary.NumberOfOffers) > 0 {
		for _, n := range env.Payload.Summary.NumberOfOffers {
			totalOffers += n.OfferCount
		}
	} else {
		totalOffers = len(offers)
	}

	lowestByChannel := make(map[pricing.FulfillmentChannel]decimal.Decimal)
	for _, lp := range env.Payload.Summary.LowestPrices {
		if d, ok := lp.ListingPrice.decimal(); ok {
			lowestByChannel[pricing.FulfillmentChannel(lp.FulfillmentChannel)] = d
		}
	}

	var buyBoxPrice *decimal.Decimal
	for _, bb := range env.Payload.Summary.BuyBoxPrices {
		if d, ok := bb.ListingPrice.decimal(); ok {
			buyBoxPrice = &d
			break
		}
	}

	return &pricing.OfferChange{
		Source:                "A",
		ASIN:                  asin,
		OurSellerID:           sellerID,
		SKU:                   sku,
		Marketplace:           env.Payload.OfferChangeTrigger.MarketplaceId,
		ItemCondition:         env.Payload.OfferChangeTrigger.ItemCondition,
		CompetitorOffers:      offers,
		BuyBoxWinnerID:        buyBoxWinnerID,
		TotalOffers:           totalOffers,
		LowestPricesByChannel: lowestByChannel,
		BuyBoxPrice:           buyBoxPrice,
		ReceivedAt:            now,
	}, ""
}
