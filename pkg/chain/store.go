package chain

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is the sqlite-backed listing cache. Rows are written when listings
// are ingested and flipped to stale by the negotiator's auto-heal path.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (or creates) the listing cache at path.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		listing_id TEXT PRIMARY KEY,
		track_id TEXT NOT NULL,
		token_id TEXT DEFAULT '',
		stem_type TEXT DEFAULT '',
		price_per_unit REAL DEFAULT 0,
		chain_id INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_listings_track_status ON listings(track_id, status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create listing schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "listing_store").Logger(),
	}, nil
}

// Upsert inserts or replaces a cached listing.
func (s *Store) Upsert(ctx context.Context, listing Listing) error {
	if listing.ListingID == "" {
		return fmt.Errorf("listing id cannot be empty")
	}
	if listing.Status == "" {
		listing.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO listings
			(listing_id, track_id, token_id, stem_type, price_per_unit, chain_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		listing.ListingID, listing.TrackID, listing.TokenID, listing.StemType,
		listing.PricePerUnit, listing.ChainID, listing.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}

// ActiveByTrack returns all cached-active listings across every stem of a
// track.
func (s *Store) ActiveByTrack(ctx context.Context, trackID string) ([]Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_id, track_id, token_id, stem_type, price_per_unit, chain_id, status
		FROM listings
		WHERE track_id = ? AND status = ?
		ORDER BY listing_id`,
		trackID, StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ListingID, &l.TrackID, &l.TokenID, &l.StemType,
			&l.PricePerUnit, &l.ChainID, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// MarkStale rewrites a cached listing's status to stale. Used by the
// negotiator's auto-heal when on-chain state disagrees with the cache.
func (s *Store) MarkStale(ctx context.Context, listingID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE listings SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE listing_id = ?",
		StatusStale, listingID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark listing stale: %w", err)
	}

	affected, _ := res.RowsAffected()
	s.logger.Info().
		Str("listing_id", listingID).
		Int64("rows", affected).
		Msg("Listing marked stale")

	return nil
}

// Get returns one cached listing.
func (s *Store) Get(ctx context.Context, listingID string) (Listing, error) {
	var l Listing
	err := s.db.QueryRowContext(ctx, `
		SELECT listing_id, track_id, token_id, stem_type, price_per_unit, chain_id, status
		FROM listings WHERE listing_id = ?`, listingID,
	).Scan(&l.ListingID, &l.TrackID, &l.TokenID, &l.StemType, &l.PricePerUnit, &l.ChainID, &l.Status)
	if err != nil {
		return Listing{}, fmt.Errorf("listing %s not found: %w", listingID, err)
	}
	return l, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
