// Package normalize parses the two heterogeneous marketplace payloads
// (the polled queue's AnyOfferChanged notification and the webhook's
// buybox-changed event) into the canonical pricing.OfferChange record
// (C2).
package normalize

import (
	"context"
)

// DropReason names why a raw event was dropped before it became an
// OfferChange. A drop is not an error: the source message is still
// acked (§4.2 fail-fast conditions, §7 category 1).
type DropReason string

const (
	DropMalformedJSON  DropReason = "malformed_json"
	DropMissingASIN    DropReason = "missing_asin"
	DropEmptyOffers    DropReason = "empty_offers"
	DropUnknownOwner   DropReason = "unknown_owner"
)

// OwnerResolver resolves which of our sellers (and under which SKU) owns
// a listing for the given ASIN. §4.2: "the concrete resolution is
// implementation-local to C6" — the store package supplies this.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, asin string, candidateSellerIDs []string) (sellerID, sku string, ok bool)
}
