package curator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/chain"
	"github.com/harlan/mixcue/pkg/tools"
)

// ListingCache is the local listing store the negotiator reads and heals.
type ListingCache interface {
	ActiveByTrack(ctx context.Context, trackID string) ([]chain.Listing, error)
	MarkStale(ctx context.Context, listingID string) error
}

// NegotiationRequest are the inputs to one negotiation.
type NegotiationRequest struct {
	TrackID            string
	LicenseType        string
	BudgetRemainingUSD float64
	StemTypes          []string
	Volume             int // caller purchase-history count, drives the volume discount
}

// Negotiator quotes a licensed price against the budget and reconciles the
// listing cache with on-chain state.
type Negotiator struct {
	registry *tools.Registry
	listings ListingCache
	reader   chain.Reader
	logger   zerolog.Logger
	now      func() time.Time
}

// NewNegotiator creates a negotiator. reader may be nil, in which case no
// listing is ever confirmed valid.
func NewNegotiator(registry *tools.Registry, listings ListingCache, reader chain.Reader, logger zerolog.Logger) *Negotiator {
	return &Negotiator{
		registry: registry,
		listings: listings,
		reader:   reader,
		logger:   logger.With().Str("component", "negotiator").Logger(),
		now:      time.Now,
	}
}

// Negotiate quotes the price and, when it fits the budget, resolves the
// track's chain-valid listings. Listing-lookup failures degrade the result
// to fewer listings; they never abort the negotiation.
func (n *Negotiator) Negotiate(ctx context.Context, req NegotiationRequest) (NegotiationResult, error) {
	out, err := n.registry.Execute(ctx, tools.ToolPricingQuote, map[string]interface{}{
		"license_type": req.LicenseType,
		"volume":       req.Volume,
	})
	if err != nil {
		return NegotiationResult{}, err
	}
	quote, ok := out.(tools.QuoteOutput)
	if !ok {
		return NegotiationResult{}, fmt.Errorf("quote tool returned unexpected type %T", out)
	}

	result := NegotiationResult{
		LicenseType: req.LicenseType,
		PriceUSD:    quote.PriceUSD,
		Listings:    []chain.Listing{},
	}

	// Price over budget short-circuits: no chain lookup at all.
	if quote.PriceUSD > req.BudgetRemainingUSD {
		result.Reason = ReasonOverBudget
		observability.RecordNegotiation(ReasonOverBudget)
		return result, nil
	}

	result.Allowed = true
	result.Listings = n.resolveListings(ctx, req.TrackID, req.StemTypes)
	observability.RecordNegotiation("allowed")

	return result, nil
}

// resolveListings verifies every cached-active listing of the track against
// chain state. Chain reads across distinct listings run concurrently; each
// listing is verified at most once per call.
func (n *Negotiator) resolveListings(ctx context.Context, trackID string, stemTypes []string) []chain.Listing {
	cached, err := n.listings.ActiveByTrack(ctx, trackID)
	if err != nil {
		n.logger.Warn().Err(err).Str("track_id", trackID).Msg("Listing cache read failed")
		return []chain.Listing{}
	}

	valid := make([]bool, len(cached))

	var wg sync.WaitGroup
	for i := range cached {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			valid[i] = n.verifyListing(ctx, cached[i])
		}(i)
	}
	wg.Wait()

	wantStem := make(map[string]bool, len(stemTypes))
	for _, stem := range stemTypes {
		wantStem[stem] = true
	}

	result := []chain.Listing{}
	for i, listing := range cached {
		if !valid[i] {
			continue
		}
		if len(wantStem) > 0 && !wantStem[listing.StemType] {
			continue
		}
		result = append(result, listing)
	}
	return result
}

// verifyListing checks one listing on chain. A chain-invalid listing is
// auto-healed to stale; an RPC failure is only excluded, since the cause is
// ambiguous between a dead listing and an unreachable node.
func (n *Negotiator) verifyListing(ctx context.Context, listing chain.Listing) bool {
	if n.reader == nil {
		return false
	}

	state, err := n.reader.Listing(ctx, listing.ListingID)
	if err != nil {
		observability.RecordChainReadError()
		n.logger.Warn().
			Err(err).
			Str("listing_id", listing.ListingID).
			Msg("On-chain listing read failed, excluding listing")
		return false
	}

	if !state.Valid(n.now()) {
		if err := n.listings.MarkStale(ctx, listing.ListingID); err != nil {
			n.logger.Error().
				Err(err).
				Str("listing_id", listing.ListingID).
				Msg("Failed to heal stale listing")
		} else {
			observability.RecordListingHealed()
			n.logger.Info().
				Str("listing_id", listing.ListingID).
				Str("seller", state.Seller).
				Msg("Cached listing no longer valid on chain, healed to stale")
		}
		return false
	}

	return true
}
