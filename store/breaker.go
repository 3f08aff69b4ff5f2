package store

import (
	"context"
	"time"

	"github.com/epic1st/repricer/pricing"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker wrapping every C6 call
// (§5 "circuit breaker around C6... trips open on repeated transient
// errors (e.g., 50% failure over 30s), fails-fast for a cool-down window,
// then half-opens").
type BreakerSettings struct {
	ConsecutiveFailureThreshold uint32
	OpenTimeout                 time.Duration
	HalfOpenMaxRequests         uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailureThreshold: 5,
		OpenTimeout:                 30 * time.Second,
		HalfOpenMaxRequests:         3,
	}
}

// TripListener is notified whenever the breaker opens, so the caller can
// drive the durable audit trail (logging.AuditLogger). ManualReset does
// not notify it.
type TripListener func(name string, consecutiveFailures uint32)

// BreakerGateway wraps a Gateway so every call trips a named circuit
// breaker on repeated transient failures, grounded on the suprachakra
// DynamicPricingEngine's map-of-named-breakers pattern
// (initializeCircuitBreakers), adapted to gobreaker/v2's generic API.
type BreakerGateway struct {
	inner    *Gateway
	breaker  *gobreaker.CircuitBreaker[any]
	onTrip   TripListener
	settings BreakerSettings
}

func NewBreakerGateway(inner *Gateway, settings BreakerSettings, onTrip TripListener) *BreakerGateway {
	bg := &BreakerGateway{inner: inner, onTrip: onTrip, settings: settings}

	cbSettings := gobreaker.Settings{
		Name:        "store_gateway",
		MaxRequests: settings.HalfOpenMaxRequests,
		Interval:    0, // never reset failure counts while closed
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen && bg.onTrip != nil {
				bg.onTrip(name, settings.ConsecutiveFailureThreshold)
			}
		},
	}
	bg.breaker = gobreaker.NewCircuitBreaker[any](cbSettings)
	return bg
}

// ManualReset forces the breaker closed, mirroring the spec's "management
// endpoints for manual reset/resume... MAY be exposed" (§6, §8 supplemented
// feature).
func (bg *BreakerGateway) ManualReset() {
	// gobreaker has no direct reset; closing is achieved by letting the
	// timeout elapse, but an operator-triggered reset needs to act now.
	// Rebuild the breaker in the closed state with the same settings.
	cbSettings := gobreaker.Settings{
		Name:        "store_gateway",
		MaxRequests: bg.settings.HalfOpenMaxRequests,
		Timeout:     bg.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bg.settings.ConsecutiveFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen && bg.onTrip != nil {
				bg.onTrip(name, bg.settings.ConsecutiveFailureThreshold)
			}
		},
	}
	bg.breaker = gobreaker.NewCircuitBreaker[any](cbSettings)
}

// State reports the breaker's current state for the /health endpoint.
func (bg *BreakerGateway) State() gobreaker.State {
	return bg.breaker.State()
}

// runThrough executes fn through the breaker, but only a transient
// store.Error counts toward ReadyToTrip's failure tally — a structural
// decode error or a clean not-found is a legitimate outcome, not a
// dependency failure, and must not contribute to tripping the breaker
// (gobreaker/v2's Execute has no built-in way to classify errors, so the
// inner closure swallows non-transient errors before they reach it and
// this wrapper re-attaches them to the result afterward).
func runThrough[T any](bg *BreakerGateway, fn func() (T, error)) (T, error) {
	var passthrough error
	result, err := bg.breaker.Execute(func() (any, error) {
		val, ferr := fn()
		if ferr != nil && !IsRetryable(ferr) {
			passthrough = ferr
			return val, nil
		}
		return val, ferr
	})
	if result == nil {
		// Breaker open: fn was never invoked.
		var zero T
		return zero, err
	}
	if passthrough != nil {
		return result.(T), passthrough
	}
	return result.(T), err
}

func (bg *BreakerGateway) GetListing(ctx context.Context, asin, sellerID, sku string) (*pricing.ProductListing, error) {
	return runThrough(bg, func() (*pricing.ProductListing, error) {
		return bg.inner.GetListing(ctx, asin, sellerID, sku)
	})
}

func (bg *BreakerGateway) GetStrategy(ctx context.Context, strategyID string) (*pricing.Strategy, error) {
	return runThrough(bg, func() (*pricing.Strategy, error) {
		return bg.inner.GetStrategy(ctx, strategyID)
	})
}

func (bg *BreakerGateway) PutCalculatedPrice(ctx context.Context, cp *pricing.CalculatedPrice) error {
	_, err := runThrough(bg, func() (struct{}, error) {
		return struct{}{}, bg.inner.PutCalculatedPrice(ctx, cp)
	})
	return err
}

func (bg *BreakerGateway) ResolveOwner(ctx context.Context, asin string, candidateSellerIDs []string) (string, string, bool) {
	// Owner resolution during normalization (C2) happens before C4's
	// eligibility gates and isn't a store write; a breaker-open failure
	// here degrades to "unknown owner" rather than surfacing a retry,
	// since C2 has no retry path of its own (§4.2 fail-fast conditions).
	// A clean KindNotFound result from resolveOwner does not count toward
	// the breaker's failure tally (runThrough); only a transient Redis
	// failure does.
	type resolved struct {
		sellerID string
		sku      string
	}
	r, err := runThrough(bg, func() (resolved, error) {
		sellerID, sku, ferr := bg.inner.resolveOwner(ctx, asin, candidateSellerIDs)
		if ferr != nil {
			return resolved{}, ferr
		}
		return resolved{sellerID, sku}, nil
	})
	if err != nil {
		return "", "", false
	}
	return r.sellerID, r.sku, true
}

func (bg *BreakerGateway) Close() error {
	return bg.inner.Close()
}
