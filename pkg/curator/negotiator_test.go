package curator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlan/mixcue/pkg/chain"
	"github.com/harlan/mixcue/pkg/pricing"
	"github.com/harlan/mixcue/pkg/tools"
)

// fakeListingCache is an in-memory ListingCache.
type fakeListingCache struct {
	mu       sync.Mutex
	listings map[string][]chain.Listing
	stale    []string
	readErr  error
}

func (f *fakeListingCache) ActiveByTrack(ctx context.Context, trackID string) ([]chain.Listing, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings[trackID], nil
}

func (f *fakeListingCache) MarkStale(ctx context.Context, listingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = append(f.stale, listingID)
	return nil
}

// fakeReader serves canned on-chain states and counts calls.
type fakeReader struct {
	mu     sync.Mutex
	states map[string]chain.ListingState
	errs   map[string]error
	calls  int
}

func (f *fakeReader) Listing(ctx context.Context, listingID string) (chain.ListingState, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := f.errs[listingID]; err != nil {
		return chain.ListingState{}, err
	}
	return f.states[listingID], nil
}

func pricingRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	registry := tools.NewRegistry()
	engine := pricing.NewEngine(pricing.DefaultConfig())
	require.NoError(t, registry.Register(tools.Definition{
		Name:        tools.ToolPricingQuote,
		Description: "test pricing",
		Parameters: []tools.Parameter{
			{Name: "license_type", Type: "string", Description: "lt", Required: true},
			{Name: "volume", Type: "integer", Description: "v"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			licenseType := params["license_type"].(string)
			volume := 1
			if v, ok := params["volume"].(int); ok {
				volume = v
			}
			price, err := engine.Quote(licenseType, volume)
			if err != nil {
				return nil, err
			}
			return tools.QuoteOutput{PriceUSD: price}, nil
		},
	}))
	return registry
}

func validState(expiry int64) chain.ListingState {
	return chain.ListingState{
		Seller: "0x1111111111111111111111111111111111111111",
		Amount: 10,
		Expiry: expiry,
	}
}

func TestNegotiateOverBudgetSkipsChainLookup(t *testing.T) {
	reader := &fakeReader{}
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {{ListingID: "lst-1", TrackID: "t1"}},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, reader, zerolog.Nop())

	// commercial = 0.02 * 5 = 0.10 > 0.05 budget.
	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicenseCommercial,
		BudgetRemainingUSD: 0.05,
		Volume:             1,
	})
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonOverBudget, result.Reason)
	assert.Equal(t, 0.10, result.PriceUSD)
	assert.Empty(t, result.Listings)
	assert.Zero(t, reader.calls, "no on-chain lookup when the price already fails budget")
}

func TestNegotiateResolvesValidListings(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	reader := &fakeReader{states: map[string]chain.ListingState{
		"lst-1": validState(future),
		"lst-2": validState(future),
	}}
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {
			{ListingID: "lst-1", TrackID: "t1", StemType: "vocals"},
			{ListingID: "lst-2", TrackID: "t1", StemType: "drums"},
		},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, reader, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Listings, 2)
	assert.Equal(t, 2, reader.calls)
	assert.Empty(t, cache.stale)
}

func TestNegotiateAutoHealsChainInvalidListing(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	reader := &fakeReader{states: map[string]chain.ListingState{
		"lst-1": validState(future),
		"lst-2": {Seller: chain.ZeroAddress, Amount: 10, Expiry: future}, // zero seller
	}}
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {
			{ListingID: "lst-1", TrackID: "t1"},
			{ListingID: "lst-2", TrackID: "t1"},
		},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, reader, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.NoError(t, err)

	require.Len(t, result.Listings, 1)
	assert.Equal(t, "lst-1", result.Listings[0].ListingID)
	assert.Equal(t, []string{"lst-2"}, cache.stale)
}

func TestNegotiateRPCFailureExcludesWithoutHealing(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	reader := &fakeReader{
		states: map[string]chain.ListingState{"lst-1": validState(future)},
		errs:   map[string]error{"lst-2": fmt.Errorf("connection refused")},
	}
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {
			{ListingID: "lst-1", TrackID: "t1"},
			{ListingID: "lst-2", TrackID: "t1"},
		},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, reader, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.NoError(t, err)

	require.Len(t, result.Listings, 1)
	assert.Equal(t, "lst-1", result.Listings[0].ListingID)
	// Ambiguous failure: the cache must not be healed.
	assert.Empty(t, cache.stale)
}

func TestNegotiateFiltersByStemTypes(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	reader := &fakeReader{states: map[string]chain.ListingState{
		"lst-1": validState(future),
		"lst-2": validState(future),
		"lst-3": validState(future),
	}}
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {
			{ListingID: "lst-1", TrackID: "t1", StemType: "vocals"},
			{ListingID: "lst-2", TrackID: "t1", StemType: "drums"},
			{ListingID: "lst-3", TrackID: "t1", StemType: "bass"},
		},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, reader, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		StemTypes:          []string{"vocals", "bass"},
		Volume:             1,
	})
	require.NoError(t, err)

	require.Len(t, result.Listings, 2)
	assert.Equal(t, "lst-1", result.Listings[0].ListingID)
	assert.Equal(t, "lst-3", result.Listings[1].ListingID)
}

func TestNegotiateCacheFailureDegradesToNoListings(t *testing.T) {
	cache := &fakeListingCache{readErr: fmt.Errorf("disk error")}

	negotiator := NewNegotiator(pricingRegistry(t), cache, &fakeReader{}, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Listings)
}

func TestNegotiateUnknownLicensePropagates(t *testing.T) {
	negotiator := NewNegotiator(pricingRegistry(t), &fakeListingCache{}, &fakeReader{}, zerolog.Nop())

	_, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        "broadcast",
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	assert.Error(t, err)
}

func TestNegotiateNilReaderConfirmsNothing(t *testing.T) {
	cache := &fakeListingCache{listings: map[string][]chain.Listing{
		"t1": {{ListingID: "lst-1", TrackID: "t1"}},
	}}

	negotiator := NewNegotiator(pricingRegistry(t), cache, nil, zerolog.Nop())

	result, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Listings)
}

func TestNegotiateMisshapenQuoteToolErrors(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Definition{
		Name:        tools.ToolPricingQuote,
		Description: "wrong shape",
		Parameters: []tools.Parameter{
			{Name: "license_type", Type: "string", Description: "lt", Required: true},
			{Name: "volume", Type: "integer", Description: "v"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"price_usd": 0.02}, nil
		},
	}))

	negotiator := NewNegotiator(registry, &fakeListingCache{}, nil, zerolog.Nop())

	_, err := negotiator.Negotiate(context.Background(), NegotiationRequest{
		TrackID:            "t1",
		LicenseType:        pricing.LicensePersonal,
		BudgetRemainingUSD: 1.00,
		Volume:             1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected type")
}
