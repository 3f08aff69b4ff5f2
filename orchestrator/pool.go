// Package orchestrator runs the bounded worker pool (C3) that drives
// every accepted event through the four-step pipeline — extract,
// read, decide, calculate & persist — described in §4.3. Concurrency
// is capped with golang.org/x/sync/semaphore, goroutine lifecycle
// managed with golang.org/x/sync/errgroup, the same pairing the
// teacher's own dispatch code reaches for.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/epic1st/repricer/decision"
	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/logging"
	"github.com/epic1st/repricer/normalize"
	"github.com/epic1st/repricer/pricing"
	"github.com/epic1st/repricer/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Gateway is the subset of store.BreakerGateway the pipeline needs,
// narrowed so tests can substitute a fake without a real Redis.
type Gateway interface {
	normalize.OwnerResolver
	GetListing(ctx context.Context, asin, sellerID, sku string) (*pricing.ProductListing, error)
	GetStrategy(ctx context.Context, strategyID string) (*pricing.Strategy, error)
	PutCalculatedPrice(ctx context.Context, cp *pricing.CalculatedPrice) error
}

// Metrics is the pool's narrow view onto the metrics package, kept as
// an interface here so orchestrator never imports metrics directly
// (metrics.Recorder satisfies it structurally; neither package imports
// the other).
type Metrics interface {
	ObserveStageLatency(stage string, d time.Duration)
	IncOutcome(source, outcome string)
	IncSkipReason(reason string)
	SetWorkerPoolInFlight(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStageLatency(string, time.Duration) {}
func (noopMetrics) IncOutcome(string, string)                 {}
func (noopMetrics) IncSkipReason(string)                      {}
func (noopMetrics) SetWorkerPoolInFlight(int)                 {}

// AuditLogger is the pool's narrow view onto logging.AuditLogger, kept
// as an interface so a nil logger (the default) is a valid no-op and
// tests never need a real *logging.AuditLogger.
type AuditLogger interface {
	LogRepriceWrite(ctx context.Context, sellerID, sku, asin, strategyUsed string, oldPrice, newPrice float64)
	LogRepriceSkip(ctx context.Context, sellerID, sku, reason string)
}

// Config binds the pool's concurrency and deadline knobs (§5, mirrors
// config.OrchestratorConfig without importing config directly).
type Config struct {
	MaxInFlight   int
	EventDeadline time.Duration
}

// Pool is the bounded worker pool itself.
type Pool struct {
	cfg      Config
	gateway  Gateway
	logger   *logging.Logger
	metrics  Metrics
	audit    AuditLogger
	sem      *semaphore.Weighted
	inFlight int64
}

// New builds a Pool. A nil metrics recorder is replaced with a no-op.
func New(cfg Config, gateway Gateway, logger *logging.Logger, m Metrics) *Pool {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if m == nil {
		m = noopMetrics{}
	}
	return &Pool{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
		metrics: m,
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// WithAuditLogger attaches a durable audit trail for reprice
// writes/skips. Optional: a Pool with no audit logger simply skips the
// durable trail and relies on its structured log stream alone.
func (p *Pool) WithAuditLogger(a AuditLogger) *Pool {
	p.audit = a
	return p
}

// InFlight reports the number of events currently being processed, for
// the worker-pool saturation health check and gauge.
func (p *Pool) InFlight() int {
	return int(atomic.LoadInt64(&p.inFlight))
}

// Run pulls events from in until the channel closes or ctx is
// cancelled, dispatching each to its own goroutine under the
// semaphore. It blocks until every in-flight event has finished, so
// callers drive the drain deadline by cancelling a derived context
// (§5 "wait for in-flight workers up to a drain deadline, then exit").
func (p *Pool) Run(ctx context.Context, in <-chan intake.RawEvent) error {
	g, gctx := errgroup.WithContext(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case event, ok := <-in:
			if !ok {
				break loop
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				break loop
			}
			g.Go(func() error {
				defer p.sem.Release(1)
				p.processEvent(gctx, event)
				return nil
			})
		}
	}
	return g.Wait()
}

// processEvent runs the four pipeline steps for a single event and
// reports exactly one terminal outcome back through event.Ack (§4.3).
// It never panics the worker goroutine on a business-level failure;
// every branch below is a deliberate ack/retry decision, not an error
// bubbling up.
func (p *Pool) processEvent(ctx context.Context, event intake.RawEvent) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EventDeadline)
	defer cancel()

	p.metrics.SetWorkerPoolInFlight(int(atomic.AddInt64(&p.inFlight, 1)))
	defer func() {
		p.metrics.SetWorkerPoolInFlight(int(atomic.AddInt64(&p.inFlight, -1)))
	}()

	start := time.Now()
	defer func() {
		p.metrics.ObserveStageLatency("total", time.Since(start))
	}()

	log := p.logger.WithContext(ctx)

	// Step 1: extract.
	extractStart := time.Now()
	oc, drop := p.extract(ctx, event)
	p.metrics.ObserveStageLatency("extract", time.Since(extractStart))
	if drop != "" {
		log.Info("event dropped during normalization", logging.String("event_id", event.ID), logging.String("drop_reason", string(drop)))
		p.metrics.IncOutcome(string(event.Source), "skip")
		p.metrics.IncSkipReason(string(drop))
		event.Ack.Ack()
		return
	}

	// Step 2: read.
	readStart := time.Now()
	listing, strat, retry := p.read(ctx, oc)
	p.metrics.ObserveStageLatency("read", time.Since(readStart))
	if retry {
		log.Warn("transient store error reading listing/strategy, retrying", logging.String("event_id", event.ID), logging.ASIN(oc.ASIN))
		p.metrics.IncOutcome(string(event.Source), "retry")
		event.Ack.Retry()
		return
	}

	// Step 3: decide.
	decideStart := time.Now()
	outcome := decision.Evaluate(oc, listing, strat)
	p.metrics.ObserveStageLatency("decide", time.Since(decideStart))
	if !outcome.ShouldReprice {
		log.Info("event skipped by decision engine", logging.String("event_id", event.ID), logging.String("reason", outcome.Reason))
		p.metrics.IncOutcome(string(event.Source), "skip")
		p.metrics.IncSkipReason(outcome.Reason)
		event.Ack.Ack()
		return
	}

	// Step 4: calculate & persist.
	calcStart := time.Now()
	retry = p.calculateAndPersist(ctx, oc, listing, strat, log)
	p.metrics.ObserveStageLatency("calculate_persist", time.Since(calcStart))
	if retry {
		p.metrics.IncOutcome(string(event.Source), "retry")
		event.Ack.Retry()
		return
	}

	p.metrics.IncOutcome(string(event.Source), "ok")
	event.Ack.Ack()
}

func (p *Pool) extract(ctx context.Context, event intake.RawEvent) (*pricing.OfferChange, normalize.DropReason) {
	now := time.Now()
	switch event.Source {
	case intake.SourceWebhook:
		return normalize.SourceB(ctx, event.Payload, p.gateway, now)
	default:
		return normalize.SourceA(ctx, event.Payload, p.gateway, now)
	}
}

// read loads the listing and its strategy. A transient store error on
// either lookup reports retry=true. A not-found on either is not an
// error here: it's handed to decision.Evaluate as a nil listing/strat,
// which resolves it to a named skip reason (product_not_found,
// strategy_missing) rather than a second error path.
func (p *Pool) read(ctx context.Context, oc *pricing.OfferChange) (*pricing.ProductListing, *pricing.Strategy, bool) {
	listing, err := p.gateway.GetListing(ctx, oc.ASIN, oc.OurSellerID, oc.SKU)
	if err != nil {
		if store.IsRetryable(err) {
			return nil, nil, true
		}
		return nil, nil, false
	}

	strat, err := p.gateway.GetStrategy(ctx, listing.StrategyID)
	if err != nil {
		if store.IsRetryable(err) {
			return nil, nil, true
		}
		return listing, nil, false
	}
	return listing, strat, false
}

// calculateAndPersist computes and writes the standard price, then any
// B2B tier sub-records, returning retry=true on a transient write
// failure. A pricing-level skip (bounds violation, no valid
// competitor) is logged and treated as a normal ack, per §4.5/§7.
func (p *Pool) calculateAndPersist(ctx context.Context, oc *pricing.OfferChange, listing *pricing.ProductListing, strat *pricing.Strategy, log *logging.ContextLogger) bool {
	now := time.Now()

	quote := pricing.Compute(oc, listing, strat)
	if quote.Skip != "" {
		log.Info("standard price skipped", logging.ASIN(listing.ASIN), logging.SKU(listing.SKU), logging.String("reason", string(quote.Skip)))
		p.metrics.IncSkipReason(string(quote.Skip))
		if p.audit != nil {
			p.audit.LogRepriceSkip(ctx, listing.SellerID, listing.SKU, string(quote.Skip))
		}
	} else {
		cp := quote.ToCalculatedPrice(oc, listing, now)
		if !cp.PriceChanged {
			log.Info("standard price unchanged, write skipped", logging.ASIN(listing.ASIN), logging.SKU(listing.SKU))
			p.metrics.IncSkipReason("price_unchanged")
			if p.audit != nil {
				p.audit.LogRepriceSkip(ctx, listing.SellerID, listing.SKU, "price_unchanged")
			}
		} else if err := p.gateway.PutCalculatedPrice(ctx, &cp); err != nil {
			if store.IsRetryable(err) {
				return true
			}
			log.Error("failed to persist standard calculated price", err, logging.ASIN(listing.ASIN), logging.SKU(listing.SKU))
		} else if p.audit != nil {
			oldPrice, _ := cp.OldPrice.Float64()
			newPrice, _ := cp.NewPrice.Float64()
			p.audit.LogRepriceWrite(ctx, cp.SellerID, cp.SKU, cp.ASIN, cp.StrategyUsed, oldPrice, newPrice)
		}
	}

	if !listing.IsB2B || len(listing.B2BTiers) == 0 {
		return false
	}

	competitorTiers := selectCompetitorTiers(oc)
	for _, tq := range pricing.ComputeB2BTiers(listing, strat, competitorTiers) {
		if tq.Skip != "" {
			log.Info("b2b tier skipped", logging.ASIN(listing.ASIN), logging.SKU(listing.SKU), logging.Int("tier_min_quantity", tq.MinQuantity), logging.String("reason", string(tq.Skip)))
			p.metrics.IncSkipReason(string(tq.Skip))
			if p.audit != nil {
				p.audit.LogRepriceSkip(ctx, listing.SellerID, listing.SKU, string(tq.Skip))
			}
			continue
		}
		cp := tq.ToCalculatedPrice(oc, listing, tierListedPrice(listing, tq.MinQuantity), now)
		if !cp.PriceChanged {
			log.Info("b2b tier price unchanged, write skipped", logging.ASIN(listing.ASIN), logging.SKU(listing.SKU), logging.Int("tier_min_quantity", tq.MinQuantity))
			p.metrics.IncSkipReason("tier_price_unchanged")
			if p.audit != nil {
				p.audit.LogRepriceSkip(ctx, listing.SellerID, listing.SKU, "tier_price_unchanged")
			}
			continue
		}
		if err := p.gateway.PutCalculatedPrice(ctx, &cp); err != nil {
			if store.IsRetryable(err) {
				return true
			}
			log.Error("failed to persist b2b tier calculated price", err, logging.ASIN(listing.ASIN), logging.SKU(listing.SKU), logging.Int("tier_min_quantity", tq.MinQuantity))
		} else if p.audit != nil {
			oldPrice, _ := cp.OldPrice.Float64()
			newPrice, _ := cp.NewPrice.Float64()
			p.audit.LogRepriceWrite(ctx, cp.SellerID, cp.SKU, cp.ASIN, cp.StrategyUsed, oldPrice, newPrice)
		}
	}
	return false
}

// selectCompetitorTiers picks which competitor's B2B tiers to price
// against when an OfferChange carries more than one: the buy-box
// winner's, if present among them, otherwise the first available
// entry. Matching on BuyBoxWinnerID keeps the B2B path consistent with
// MATCH_BUYBOX's standard-price competitor selection without needing
// the unexported single-competitor search the standard path uses.
func selectCompetitorTiers(oc *pricing.OfferChange) []pricing.B2BTier {
	if len(oc.CompetitorB2BOffers) == 0 {
		return nil
	}
	if oc.BuyBoxWinnerID != nil {
		for _, c := range oc.CompetitorB2BOffers {
			if c.SellerID == *oc.BuyBoxWinnerID {
				return c.Tiers
			}
		}
	}
	return oc.CompetitorB2BOffers[0].Tiers
}

func tierListedPrice(listing *pricing.ProductListing, minQuantity int) decimal.Decimal {
	for _, t := range listing.B2BTiers {
		if t.MinQuantity == minQuantity {
			return t.Price
		}
	}
	return decimal.Zero
}
