// Package store is the sole owner of key-value access (C6): product
// listings, strategies, and calculated prices, laid out exactly per §6 so
// external admin tooling and data populators stay compatible.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/epic1st/repricer/logging"
	"github.com/epic1st/repricer/pricing"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const containerTTL = 2 * time.Hour

// redisClient is the narrow surface Gateway depends on — enough to satisfy
// every operation in this file, structurally implemented by *redis.Client,
// and small enough that tests substitute a hand-rolled fake instead of
// mocking the concrete client (grounded in cache/cache_test.go's habit of
// testing against a real implementation of the interface).
type redisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config mirrors the teacher's RedisConfig shape (cache/redis.go), with the
// prefix/TTL replaced by this spec's fixed key layout.
type Config struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the store's default connection settings. Pool size
// defaults to 20 per §4.6's "connection pooling (≥20 connections)".
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:6379",
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Gateway is C6: typed access to listings, strategies, and calculated
// prices over a single Redis connection pool.
type Gateway struct {
	client redisClient
	raw    *redis.Client // non-nil only when backed by a real server; no method reads it, and every call is a single unpipelined command
}

// NewGateway dials Redis per cfg and verifies connectivity with a Ping.
func NewGateway(cfg Config) (*Gateway, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	return &Gateway{client: rc, raw: rc}, nil
}

// newGatewayWithClient builds a Gateway over an arbitrary redisClient —
// used by tests to substitute a fake.
func newGatewayWithClient(c redisClient) *Gateway {
	return &Gateway{client: c}
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.client.Close()
}

func listingHashKey(asin string) string {
	return "ASIN_" + asin
}

func listingField(sellerID, sku string) string {
	return sellerID + ":" + sku
}

func strategyHashKey(strategyID string) string {
	return "strategy." + strategyID
}

func calculatedPricesHashKey(sellerID string) string {
	return "CALCULATED_PRICES:" + sellerID
}

func tierField(sku string, minQuantity int) string {
	return fmt.Sprintf("%s:tier:%d", sku, minQuantity)
}

// GetListing implements §4.6: getListing(asin, seller, sku) → Listing | NotFound.
func (g *Gateway) GetListing(ctx context.Context, asin, sellerID, sku string) (*pricing.ProductListing, error) {
	defer trackQuery(ctx, "HGET "+listingHashKey(asin), time.Now())
	raw, err := g.client.HGet(ctx, listingHashKey(asin), listingField(sellerID, sku)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, notFoundErr("get_listing")
		}
		return nil, transientErr("get_listing", err)
	}

	var listing pricing.ProductListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, structuralErr("get_listing", err)
	}
	return &listing, nil
}

// PutListing writes a listing (used by tests; the spec treats listings
// as externally managed, but C6 still needs a write path to seed them in
// this module's own tests).
func (g *Gateway) PutListing(ctx context.Context, listing *pricing.ProductListing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return structuralErr("put_listing", err)
	}
	key := listingHashKey(listing.ASIN)
	field := listingField(listing.SellerID, listing.SKU)
	if err := g.client.HSet(ctx, key, field, data).Err(); err != nil {
		return transientErr("put_listing", err)
	}
	if err := g.client.Expire(ctx, key, containerTTL).Err(); err != nil {
		return transientErr("put_listing", err)
	}
	return nil
}

// GetStrategy implements §4.6: getStrategy(strategy_id) → Strategy | NotFound.
// Strategy fields are flat scalars in the hash (§6), not a JSON blob.
func (g *Gateway) GetStrategy(ctx context.Context, strategyID string) (*pricing.Strategy, error) {
	defer trackQuery(ctx, "HGETALL "+strategyHashKey(strategyID), time.Now())
	fields, err := g.client.HGetAll(ctx, strategyHashKey(strategyID)).Result()
	if err != nil {
		return nil, transientErr("get_strategy", err)
	}
	if len(fields) == 0 {
		return nil, notFoundErr("get_strategy")
	}
	return decodeStrategy(strategyID, fields)
}

// PutStrategy writes a strategy as flat scalar fields.
func (g *Gateway) PutStrategy(ctx context.Context, strat *pricing.Strategy) error {
	key := strategyHashKey(strat.StrategyID)
	values := encodeStrategy(strat)
	if err := g.client.HSet(ctx, key, values...).Err(); err != nil {
		return transientErr("put_strategy", err)
	}
	if err := g.client.Expire(ctx, key, containerTTL).Err(); err != nil {
		return transientErr("put_strategy", err)
	}
	return nil
}

func encodeStrategy(s *pricing.Strategy) []interface{} {
	values := []interface{}{
		"compete_with", string(s.CompeteWith),
		"beat_by", s.BeatBy.String(),
		"min_price_rule", string(s.MinPriceRule),
		"max_price_rule", string(s.MaxPriceRule),
	}
	if s.B2BCompeteFor != nil {
		values = append(values, "b2b_compete_for", string(*s.B2BCompeteFor))
	}
	if s.B2BPriceRule != nil {
		values = append(values, "b2b_price_rule", string(*s.B2BPriceRule))
	}
	return values
}

func decodeStrategy(strategyID string, fields map[string]string) (*pricing.Strategy, error) {
	beatBy, err := decimalFromField(fields["beat_by"])
	if err != nil {
		return nil, structuralErr("get_strategy", err)
	}
	strat := &pricing.Strategy{
		StrategyID:   strategyID,
		CompeteWith:  pricing.CompeteWith(fields["compete_with"]),
		BeatBy:       beatBy,
		MinPriceRule: pricing.PriceRule(fields["min_price_rule"]),
		MaxPriceRule: pricing.PriceRule(fields["max_price_rule"]),
	}
	if v, ok := fields["b2b_compete_for"]; ok && v != "" {
		cf := pricing.B2BCompeteFor(v)
		strat.B2BCompeteFor = &cf
	}
	if v, ok := fields["b2b_price_rule"]; ok && v != "" {
		pr := pricing.B2BPriceRule(v)
		strat.B2BPriceRule = &pr
	}
	return strat, nil
}

// PutCalculatedPrice implements §4.6/§6: overwrite the field under the
// per-seller calculated-prices record; refresh container TTL to 2h.
func (g *Gateway) PutCalculatedPrice(ctx context.Context, cp *pricing.CalculatedPrice) error {
	defer trackQuery(ctx, "HSET "+calculatedPricesHashKey(cp.SellerID), time.Now())
	data, err := json.Marshal(cp)
	if err != nil {
		return structuralErr("put_calculated_price", err)
	}
	key := calculatedPricesHashKey(cp.SellerID)
	field := cp.SKU
	if cp.TierMinQuantity != nil {
		field = tierField(cp.SKU, *cp.TierMinQuantity)
	}
	if err := g.client.HSet(ctx, key, field, data).Err(); err != nil {
		return transientErr("put_calculated_price", err)
	}
	if err := g.client.Expire(ctx, key, containerTTL).Err(); err != nil {
		return transientErr("put_calculated_price", err)
	}
	return nil
}

// GetCalculatedPrice is the read side, used by tests; not required by
// the core pipeline (which only writes).
func (g *Gateway) GetCalculatedPrice(ctx context.Context, sellerID, sku string) (*pricing.CalculatedPrice, error) {
	raw, err := g.client.HGet(ctx, calculatedPricesHashKey(sellerID), sku).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, notFoundErr("get_calculated_price")
		}
		return nil, transientErr("get_calculated_price", err)
	}
	var cp pricing.CalculatedPrice
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, structuralErr("get_calculated_price", err)
	}
	return &cp, nil
}

// ResolveOwner implements normalize.OwnerResolver: find which of the
// candidate seller IDs owns a listing for asin, and return its SKU (§4.2
// "our-seller resolution... implementation-local to C6"). A transient
// Redis failure here degrades to "unknown owner" rather than surfacing an
// error, since C2 has no retry path of its own.
func (g *Gateway) ResolveOwner(ctx context.Context, asin string, candidateSellerIDs []string) (string, string, bool) {
	sellerID, sku, err := g.resolveOwner(ctx, asin, candidateSellerIDs)
	if err != nil {
		return "", "", false
	}
	return sellerID, sku, true
}

// resolveOwner is the error-returning form used by BreakerGateway, which
// needs to distinguish a transient Redis failure (counts toward the
// circuit breaker) from a legitimate "no matching owner" result (does
// not).
func (g *Gateway) resolveOwner(ctx context.Context, asin string, candidateSellerIDs []string) (string, string, error) {
	fields, err := g.client.HGetAll(ctx, listingHashKey(asin)).Result()
	if err != nil {
		return "", "", transientErr("resolve_owner", err)
	}
	if len(fields) == 0 {
		return "", "", notFoundErr("resolve_owner")
	}

	if len(candidateSellerIDs) > 0 {
		for _, candidate := range candidateSellerIDs {
			prefix := candidate + ":"
			for field := range fields {
				if strings.HasPrefix(field, prefix) {
					return candidate, strings.TrimPrefix(field, prefix), nil
				}
			}
		}
		return "", "", notFoundErr("resolve_owner")
	}

	// No candidates supplied: return the single listed owner, if
	// exactly one exists for this ASIN (an ASIN with zero or multiple
	// known sellers can't be resolved without a hint).
	if len(fields) != 1 {
		return "", "", notFoundErr("resolve_owner")
	}
	for field := range fields {
		parts := strings.SplitN(field, ":", 2)
		if len(parts) != 2 {
			return "", "", notFoundErr("resolve_owner")
		}
		return parts[0], parts[1], nil
	}
	return "", "", notFoundErr("resolve_owner")
}

// trackQuery feeds every Redis round trip into the shared slow-query
// tracker, the same global performance tracker logging.LogSlowEndpoint
// feeds for the HTTP side.
func trackQuery(ctx context.Context, command string, start time.Time) {
	logging.LogSlowQuery(ctx, command, time.Since(start))
}

func decimalFromField(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
