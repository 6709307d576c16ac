// Package chain consumes the marketplace contract's read-only listing view
// and maintains the local listing cache. On-chain state is the source of
// truth; the cache self-heals when the two disagree.
package chain

import (
	"context"
	"strings"
	"time"
)

// Listing statuses stored in the local cache.
const (
	StatusActive = "active"
	StatusStale  = "stale"
)

// ZeroAddress is the null seller address on an emptied listing slot.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Listing is a locally cached marketplace offer for one stem.
type Listing struct {
	ListingID    string  `json:"listing_id"`
	TrackID      string  `json:"track_id"`
	TokenID      string  `json:"token_id"`
	StemType     string  `json:"stem_type"`
	PricePerUnit float64 `json:"price_per_unit"`
	ChainID      int64   `json:"chain_id"`
	Status       string  `json:"status"`
}

// ListingState is the raw on-chain view of a listing slot.
type ListingState struct {
	Seller       string
	TokenID      string
	Amount       uint64
	PricePerUnit float64
	PaymentToken string
	Expiry       int64
}

// Valid reports whether the on-chain slot still backs a sellable listing:
// non-zero seller, positive amount, not expired.
func (s ListingState) Valid(now time.Time) bool {
	if isZeroAddress(s.Seller) {
		return false
	}
	if s.Amount == 0 {
		return false
	}
	if s.Expiry < now.Unix() {
		return false
	}
	return true
}

func isZeroAddress(addr string) bool {
	addr = strings.TrimPrefix(strings.ToLower(addr), "0x")
	if addr == "" {
		return true
	}
	return strings.Trim(addr, "0") == ""
}

// Reader is the read-only chain capability the negotiator depends on.
type Reader interface {
	// Listing fetches the on-chain state for a listing id.
	Listing(ctx context.Context, listingID string) (ListingState, error)
}
