package chain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupListingStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "listing-test-*")
	require.NoError(t, err)

	store, err := NewStore(filepath.Join(tmpDir, "listings.db"), zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	return store
}

func TestUpsertDefaultsToActive(t *testing.T) {
	store := setupListingStore(t)

	require.NoError(t, store.Upsert(context.Background(), Listing{
		ListingID: "lst-1",
		TrackID:   "t1",
		StemType:  "vocals",
	}))

	got, err := store.Get(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestActiveByTrackExcludesStale(t *testing.T) {
	store := setupListingStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Listing{ListingID: "lst-1", TrackID: "t1", StemType: "vocals"}))
	require.NoError(t, store.Upsert(ctx, Listing{ListingID: "lst-2", TrackID: "t1", StemType: "drums"}))
	require.NoError(t, store.Upsert(ctx, Listing{ListingID: "lst-3", TrackID: "t2", StemType: "bass"}))

	require.NoError(t, store.MarkStale(ctx, "lst-2"))

	active, err := store.ActiveByTrack(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "lst-1", active[0].ListingID)
}

func TestMarkStalePersists(t *testing.T) {
	store := setupListingStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Listing{ListingID: "lst-1", TrackID: "t1"}))
	require.NoError(t, store.MarkStale(ctx, "lst-1"))

	got, err := store.Get(ctx, "lst-1")
	require.NoError(t, err)
	assert.Equal(t, StatusStale, got.Status)
}

func TestMarkStaleUnknownListing(t *testing.T) {
	store := setupListingStore(t)

	// No row affected is not an error.
	assert.NoError(t, store.MarkStale(context.Background(), "ghost"))
}

func TestUpsertEmptyID(t *testing.T) {
	store := setupListingStore(t)

	assert.Error(t, store.Upsert(context.Background(), Listing{TrackID: "t1"}))
}
