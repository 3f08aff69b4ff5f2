package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func testBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailureThreshold: 3,
		OpenTimeout:                 time.Minute,
		HalfOpenMaxRequests:         1,
	}
}

func TestBreakerStaysClosedOnRepeatedNotFound(t *testing.T) {
	g := newGatewayWithClient(newFakeRedis())
	bg := NewBreakerGateway(g, testBreakerSettings(), nil)

	for i := 0; i < 10; i++ {
		if _, _, ok := bg.ResolveOwner(context.Background(), "UNKNOWN", []string{"S1"}); ok {
			t.Fatal("expected resolution to miss")
		}
	}
	if bg.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed — repeated business misses must not trip it", bg.State())
	}
}

func TestBreakerTripsOnRepeatedTransientErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.hgetAllErr = errors.New("dial tcp: connection refused")
	g := newGatewayWithClient(fake)

	var tripped bool
	bg := NewBreakerGateway(g, testBreakerSettings(), func(name string, n uint32) {
		tripped = true
	})

	for i := 0; i < 5; i++ {
		if _, _, ok := bg.ResolveOwner(context.Background(), "X1", []string{"S1"}); ok {
			t.Fatal("expected resolution to fail")
		}
	}
	if bg.State() != gobreaker.StateOpen {
		t.Errorf("breaker state = %v, want open after repeated transient errors", bg.State())
	}
	if !tripped {
		t.Error("expected the trip listener to fire")
	}
}

func TestBreakerDoesNotCountStructuralDecodeErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.hashes["ASIN_X1"] = map[string]string{"S1:K1": "not-json"}
	g := newGatewayWithClient(fake)
	bg := NewBreakerGateway(g, testBreakerSettings(), nil)

	for i := 0; i < 10; i++ {
		_, err := bg.GetListing(context.Background(), "X1", "S1", "K1")
		if err == nil {
			t.Fatal("expected a decode error for malformed stored JSON")
		}
		if IsRetryable(err) {
			t.Fatal("a malformed stored record is not a transient failure")
		}
	}
	if bg.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed — malformed stored JSON is not a dependency failure", bg.State())
	}
}
