// Package pricing holds the canonical repricing data model and the
// strategy/bounds math that turns an OfferChange into a CalculatedPrice.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type FulfillmentChannel string

const (
	ChannelAmazon   FulfillmentChannel = "AMAZON"
	ChannelMerchant FulfillmentChannel = "MERCHANT"
)

type ListingStatus string

const (
	StatusActive   ListingStatus = "Active"
	StatusInactive ListingStatus = "Inactive"
)

// CompeteWith selects which competing offer a strategy targets.
type CompeteWith string

const (
	CompeteLowestPrice    CompeteWith = "LOWEST_PRICE"
	CompeteLowestFBAPrice CompeteWith = "LOWEST_FBA_PRICE"
	CompeteMatchBuyBox    CompeteWith = "MATCH_BUYBOX"
)

// PriceRule governs what happens when a raw price falls outside bounds.
type PriceRule string

const (
	RuleJumpToMin       PriceRule = "JUMP_TO_MIN"
	RuleJumpToMax       PriceRule = "JUMP_TO_MAX"
	RuleJumpToAvg       PriceRule = "JUMP_TO_AVG"
	RuleDoNothing       PriceRule = "DO_NOTHING"
	RuleDefaultPrice    PriceRule = "DEFAULT_PRICE"
	RuleMatchCompetitor PriceRule = "MATCH_COMPETITOR"
)

type B2BCompeteFor string

const (
	B2BCompeteLow  B2BCompeteFor = "LOW"
	B2BCompeteHigh B2BCompeteFor = "HIGH"
)

type B2BPriceRule string

const (
	B2BRuleAverage B2BPriceRule = "AVERAGE"
	B2BRuleBeatBy  B2BPriceRule = "BEAT_BY"
)

// B2BTier is a business-buyer price point attached to a minimum quantity.
type B2BTier struct {
	MinQuantity  int
	Price        decimal.Decimal
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	DefaultPrice *decimal.Decimal
}

// ProductListing is keyed by (asin, seller_id, sku) in the store.
type ProductListing struct {
	ASIN               string
	SellerID           string
	SKU                string
	ListedPrice        *decimal.Decimal
	MinPrice           *decimal.Decimal
	MaxPrice           *decimal.Decimal
	DefaultPrice       *decimal.Decimal
	StrategyID         string
	ItemCondition      string
	FulfillmentChannel FulfillmentChannel
	Status             ListingStatus
	Quantity           int
	IsB2B              bool
	B2BTiers           []B2BTier
	RepricingPaused    bool
}

var (
	ErrBoundsInverted    = errors.New("pricing: min_price > max_price")
	ErrNegativePrice     = errors.New("pricing: price must be >= 0")
	ErrListedOutOfBounds = errors.New("pricing: listed_price outside [min_price, max_price]")
	ErrDefaultOutOfBounds = errors.New("pricing: default_price outside [min_price, max_price]")
	ErrTiersUnordered    = errors.New("pricing: b2b_tiers must be strictly increasing by min_quantity")
)

// Validate enforces the listing invariants from the data model: bounds
// consistency, non-negative prices, listed/default price within bounds,
// and strictly increasing tier quantities.
func (l *ProductListing) Validate() error {
	if l.MinPrice != nil && l.MaxPrice != nil && l.MinPrice.GreaterThan(*l.MaxPrice) {
		return ErrBoundsInverted
	}
	for _, p := range []*decimal.Decimal{l.ListedPrice, l.MinPrice, l.MaxPrice, l.DefaultPrice} {
		if p != nil && p.IsNegative() {
			return ErrNegativePrice
		}
	}
	if l.ListedPrice != nil && l.MinPrice != nil && l.MaxPrice != nil {
		if l.ListedPrice.LessThan(*l.MinPrice) || l.ListedPrice.GreaterThan(*l.MaxPrice) {
			return ErrListedOutOfBounds
		}
	}
	if l.DefaultPrice != nil && l.MinPrice != nil && l.MaxPrice != nil {
		if l.DefaultPrice.LessThan(*l.MinPrice) || l.DefaultPrice.GreaterThan(*l.MaxPrice) {
			return ErrDefaultOutOfBounds
		}
	}
	last := -1
	for _, t := range l.B2BTiers {
		if t.MinQuantity <= last {
			return ErrTiersUnordered
		}
		last = t.MinQuantity
	}
	return nil
}

// Strategy is keyed by strategy_id.
type Strategy struct {
	StrategyID    string
	CompeteWith   CompeteWith
	BeatBy        decimal.Decimal
	MinPriceRule  PriceRule
	MaxPriceRule  PriceRule
	B2BCompeteFor *B2BCompeteFor
	B2BPriceRule  *B2BPriceRule
}

// CompetitorOffer is one entry of OfferChange.CompetitorOffers.
type CompetitorOffer struct {
	SellerID           string
	ListingPrice        decimal.Decimal
	LandedPrice         *decimal.Decimal
	FulfillmentChannel FulfillmentChannel
	IsBuyBoxWinner      bool
	SubCondition        string
}

// EffectivePrice prefers LandedPrice over ListingPrice, per §4.2.
func (o CompetitorOffer) EffectivePrice() decimal.Decimal {
	if o.LandedPrice != nil {
		return *o.LandedPrice
	}
	return o.ListingPrice
}

// CompetitorB2BOffer carries a competitor's tiered price point, sourced
// from a marketplace payload when present (not all payloads carry one).
type CompetitorB2BOffer struct {
	SellerID string
	Tiers    []B2BTier
}

// OfferChange is the canonical record C2 produces from either source.
type OfferChange struct {
	Source                string
	EventID                string
	ASIN                   string
	OurSellerID            string
	SKU                    string
	Marketplace            string
	ItemCondition          string
	CompetitorOffers       []CompetitorOffer
	CompetitorB2BOffers    []CompetitorB2BOffer
	BuyBoxWinnerID         *string
	TotalOffers            int
	LowestPricesByChannel  map[FulfillmentChannel]decimal.Decimal
	BuyBoxPrice            *decimal.Decimal
	ReceivedAt             time.Time
}

// NonOwnOffers returns the competitor offers excluding our own seller ID.
func (oc *OfferChange) NonOwnOffers() []CompetitorOffer {
	out := make([]CompetitorOffer, 0, len(oc.CompetitorOffers))
	for _, o := range oc.CompetitorOffers {
		if o.SellerID != oc.OurSellerID {
			out = append(out, o)
		}
	}
	return out
}

// CalculatedPrice is keyed by (seller_id, sku); overwrites any prior value.
type CalculatedPrice struct {
	SellerID        string
	SKU             string
	ASIN            string
	NewPrice        decimal.Decimal
	OldPrice        decimal.Decimal
	StrategyUsed    string
	StrategyID      string
	CompetitorPrice *decimal.Decimal
	CalculatedAt    time.Time
	PriceChanged    bool
	ProcessingTimeMS int64
	// TierMinQuantity is nil for the standard (non-tiered) record and set
	// for a per-tier B2B sub-record.
	TierMinQuantity *int
}
