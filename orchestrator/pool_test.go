package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/logging"
	"github.com/epic1st/repricer/pricing"
	"github.com/epic1st/repricer/store"
	"github.com/shopspring/decimal"
)

// fakeAck records which of Ack/Retry was called, grounded in the
// store package's habit of testing against a minimal real
// implementation rather than a mock framework.
type fakeAck struct {
	mu              sync.Mutex
	acked, retried  bool
}

func (a *fakeAck) Ack() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
}

func (a *fakeAck) Retry() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retried = true
}

func (a *fakeAck) outcome() (acked, retried bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.retried
}

type fakeGateway struct {
	listings   map[string]*pricing.ProductListing
	strategies map[string]*pricing.Strategy
	owners     map[string][2]string // asin -> [sellerID, sku]

	getListingErr error
	putErr        error

	mu   sync.Mutex
	puts []pricing.CalculatedPrice
}

func (g *fakeGateway) ResolveOwner(ctx context.Context, asin string, candidateSellerIDs []string) (string, string, bool) {
	v, ok := g.owners[asin]
	if !ok {
		return "", "", false
	}
	return v[0], v[1], true
}

func (g *fakeGateway) GetListing(ctx context.Context, asin, sellerID, sku string) (*pricing.ProductListing, error) {
	if g.getListingErr != nil {
		return nil, g.getListingErr
	}
	l, ok := g.listings[asin+"/"+sellerID+"/"+sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l, nil
}

func (g *fakeGateway) GetStrategy(ctx context.Context, strategyID string) (*pricing.Strategy, error) {
	s, ok := g.strategies[strategyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (g *fakeGateway) PutCalculatedPrice(ctx context.Context, cp *pricing.CalculatedPrice) error {
	if g.putErr != nil {
		return g.putErr
	}
	g.mu.Lock()
	g.puts = append(g.puts, *cp)
	g.mu.Unlock()
	return nil
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func webhookPayload(asin, sellerID string) []byte {
	return []byte(`{
		"eventType": "BUYBOX_CHANGED",
		"itemId": "` + asin + `",
		"sellerId": "` + sellerID + `",
		"currentBuyboxPrice": 19.99,
		"currentBuyboxWinner": "COMPETITOR1",
		"offers": [{"sellerId": "COMPETITOR1", "price": 19.99, "condition": "New"}]
	}`)
}

func newTestPool(g *fakeGateway) *Pool {
	logger := logging.NewLogger(logging.DEBUG, io.Discard)
	return New(Config{MaxInFlight: 2, EventDeadline: time.Second}, g, logger, nil)
}

func TestProcessEventAcksOnSuccessfulReprice(t *testing.T) {
	g := &fakeGateway{
		owners: map[string][2]string{"X1": {"S1", "K1"}},
		listings: map[string]*pricing.ProductListing{
			"X1/S1/K1": {
				ASIN: "X1", SellerID: "S1", SKU: "K1",
				ListedPrice: decPtr("25.00"), MinPrice: decPtr("10.00"), MaxPrice: decPtr("50.00"),
				StrategyID: "strat1", Status: pricing.StatusActive, Quantity: 5,
			},
		},
		strategies: map[string]*pricing.Strategy{
			"strat1": {StrategyID: "strat1", CompeteWith: pricing.CompeteMatchBuyBox, BeatBy: decimal.Zero, MinPriceRule: pricing.RuleJumpToMin, MaxPriceRule: pricing.RuleJumpToMax},
		},
	}
	p := newTestPool(g)
	ack := &fakeAck{}
	event := intake.NewRawEvent(intake.SourceWebhook, webhookPayload("X1", "S1"), ack)

	p.processEvent(context.Background(), event)

	acked, retried := ack.outcome()
	if !acked || retried {
		t.Fatalf("acked=%v retried=%v, want acked=true retried=false", acked, retried)
	}
	if len(g.puts) != 1 {
		t.Fatalf("expected exactly one PutCalculatedPrice call, got %d", len(g.puts))
	}
}

func TestProcessEventSkipsWriteWhenPriceUnchanged(t *testing.T) {
	g := &fakeGateway{
		owners: map[string][2]string{"X1": {"S1", "K1"}},
		listings: map[string]*pricing.ProductListing{
			"X1/S1/K1": {
				ASIN: "X1", SellerID: "S1", SKU: "K1",
				// The one-offer webhook payload gives total_offers 1, so
				// OnlySeller applies and prices at DefaultPrice (19.99),
				// equal to the listed price.
				ListedPrice: decPtr("19.99"), MinPrice: decPtr("10.00"), MaxPrice: decPtr("50.00"),
				DefaultPrice: decPtr("19.99"),
				StrategyID: "strat1", Status: pricing.StatusActive, Quantity: 5,
			},
		},
		strategies: map[string]*pricing.Strategy{
			"strat1": {StrategyID: "strat1", CompeteWith: pricing.CompeteMatchBuyBox, BeatBy: decimal.Zero, MinPriceRule: pricing.RuleJumpToMin, MaxPriceRule: pricing.RuleJumpToMax},
		},
	}
	p := newTestPool(g)
	ack := &fakeAck{}
	event := intake.NewRawEvent(intake.SourceWebhook, webhookPayload("X1", "S1"), ack)

	p.processEvent(context.Background(), event)

	acked, retried := ack.outcome()
	if !acked || retried {
		t.Fatalf("acked=%v retried=%v, want acked=true retried=false", acked, retried)
	}
	if len(g.puts) != 0 {
		t.Fatalf("a price unchanged to 2dp must not be written, got %d PutCalculatedPrice calls", len(g.puts))
	}
}

func TestProcessEventDropsMalformedPayload(t *testing.T) {
	g := &fakeGateway{}
	p := newTestPool(g)
	ack := &fakeAck{}
	event := intake.NewRawEvent(intake.SourceWebhook, []byte("not json"), ack)

	p.processEvent(context.Background(), event)

	acked, retried := ack.outcome()
	if !acked || retried {
		t.Fatalf("a normalization drop should ack, not retry: acked=%v retried=%v", acked, retried)
	}
	if len(g.puts) != 0 {
		t.Fatal("a dropped event should never reach PutCalculatedPrice")
	}
}

func TestProcessEventRetriesOnTransientStoreError(t *testing.T) {
	g := &fakeGateway{
		owners:        map[string][2]string{"X1": {"S1", "K1"}},
		getListingErr: &store.Error{Kind: store.KindTransient, Op: "get_listing", Err: errors.New("dial tcp: connection refused")},
	}
	p := newTestPool(g)
	ack := &fakeAck{}
	event := intake.NewRawEvent(intake.SourceWebhook, webhookPayload("X1", "S1"), ack)

	p.processEvent(context.Background(), event)

	acked, retried := ack.outcome()
	if acked || !retried {
		t.Fatalf("a transient store error should retry, not ack: acked=%v retried=%v", acked, retried)
	}
}

func TestProcessEventSkipsWhenProductNotFound(t *testing.T) {
	g := &fakeGateway{owners: map[string][2]string{"X1": {"S1", "K1"}}}
	p := newTestPool(g)
	ack := &fakeAck{}
	event := intake.NewRawEvent(intake.SourceWebhook, webhookPayload("X1", "S1"), ack)

	p.processEvent(context.Background(), event)

	acked, retried := ack.outcome()
	if !acked || retried {
		t.Fatalf("a not-found listing should resolve to decision-engine skip, not retry: acked=%v retried=%v", acked, retried)
	}
}

func TestSelectCompetitorTiersPrefersBuyBoxWinner(t *testing.T) {
	winner := "S2"
	oc := &pricing.OfferChange{
		BuyBoxWinnerID: &winner,
		CompetitorB2BOffers: []pricing.CompetitorB2BOffer{
			{SellerID: "S1", Tiers: []pricing.B2BTier{{MinQuantity: 10, Price: decimal.RequireFromString("9.00")}}},
			{SellerID: "S2", Tiers: []pricing.B2BTier{{MinQuantity: 10, Price: decimal.RequireFromString("8.00")}}},
		},
	}
	tiers := selectCompetitorTiers(oc)
	if len(tiers) != 1 || !tiers[0].Price.Equal(decimal.RequireFromString("8.00")) {
		t.Fatalf("got %v, want the S2 tiers", tiers)
	}
}

func TestSelectCompetitorTiersFallsBackToFirstEntry(t *testing.T) {
	oc := &pricing.OfferChange{
		CompetitorB2BOffers: []pricing.CompetitorB2BOffer{
			{SellerID: "S1", Tiers: []pricing.B2BTier{{MinQuantity: 5, Price: decimal.RequireFromString("7.00")}}},
		},
	}
	tiers := selectCompetitorTiers(oc)
	if len(tiers) != 1 || !tiers[0].Price.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("got %v, want the only available entry", tiers)
	}
}

func TestTierListedPriceFindsMatchingTier(t *testing.T) {
	listing := &pricing.ProductListing{
		B2BTiers: []pricing.B2BTier{
			{MinQuantity: 10, Price: decimal.RequireFromString("9.50")},
			{MinQuantity: 25, Price: decimal.RequireFromString("8.75")},
		},
	}
	if got := tierListedPrice(listing, 25); !got.Equal(decimal.RequireFromString("8.75")) {
		t.Errorf("got %s, want 8.75", got)
	}
	if got := tierListedPrice(listing, 999); !got.Equal(decimal.Zero) {
		t.Errorf("got %s, want zero for an unmatched tier", got)
	}
}
