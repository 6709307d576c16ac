// Package catalog stores the searchable track catalog in sqlite. Full-text
// search runs over FTS5; the tracks table is the source of record.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Track is one catalog entry. Immutable for the duration of a selection call.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Genre    string `json:"genre,omitempty"`
	Explicit bool   `json:"explicit,omitempty"`
}

// SearchText returns the text used for embedding the track.
func (t Track) SearchText() string {
	return strings.TrimSpace(t.Title + " " + t.Genre)
}

// Store is the sqlite-backed catalog.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (or creates) the catalog database at path.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		genre TEXT DEFAULT '',
		explicit INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS tracks_fts USING fts5(
		id UNINDEXED,
		title,
		genre
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a track and its FTS row.
func (s *Store) Upsert(ctx context.Context, track Track) error {
	if track.ID == "" {
		return fmt.Errorf("track id cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	explicit := 0
	if track.Explicit {
		explicit = 1
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO tracks (id, title, genre, explicit) VALUES (?, ?, ?, ?)",
		track.ID, track.Title, track.Genre, explicit,
	); err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tracks_fts WHERE id = ?", track.ID); err != nil {
		return fmt.Errorf("failed to clear fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO tracks_fts (id, title, genre) VALUES (?, ?, ?)",
		track.ID, track.Title, track.Genre,
	); err != nil {
		return fmt.Errorf("failed to index track: %w", err)
	}

	return tx.Commit()
}

// Get returns a track by id.
func (s *Store) Get(ctx context.Context, id string) (Track, error) {
	var track Track
	var explicit int

	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, genre, explicit FROM tracks WHERE id = ?", id,
	).Scan(&track.ID, &track.Title, &track.Genre, &explicit)
	if err != nil {
		return Track{}, fmt.Errorf("track %s not found: %w", id, err)
	}

	track.Explicit = explicit != 0
	return track, nil
}

// Search runs a full-text query over titles and genres. Explicit tracks are
// filtered out unless allowExplicit is set. Results keep FTS relevance order.
func (s *Store) Search(ctx context.Context, query string, limit int, allowExplicit bool) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}

	match := ftsQuote(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `
		SELECT t.id, t.title, t.genre, t.explicit
		FROM tracks_fts f
		JOIN tracks t ON t.id = f.id
		WHERE tracks_fts MATCH ?
	`
	args := []interface{}{match}

	if !allowExplicit {
		sqlQuery += " AND t.explicit = 0"
	}

	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var track Track
		var explicit int
		if err := rows.Scan(&track.ID, &track.Title, &track.Genre, &explicit); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		track.Explicit = explicit != 0
		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}

// Count returns the number of catalog tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&count)
	return count, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ftsQuote turns free text into an OR query of quoted terms so user input
// cannot inject FTS syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(quoted, " OR ")
}
