package curator

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/pkg/catalog"
	"github.com/harlan/mixcue/pkg/tools"
)

// SelectParams are the inputs to one candidate selection.
type SelectParams struct {
	Queries       []string
	RecentIDs     []string
	AllowExplicit bool
	UseEmbeddings bool
	Limit         int
}

// Selection is the ordered candidate list plus the chosen track. Selected is
// nil when the candidate list is empty; that is a valid outcome, not an
// error.
type Selection struct {
	Candidates []catalog.Track
	Selected   *catalog.Track
}

// Selector turns session preferences into an ordered candidate list.
type Selector struct {
	registry *tools.Registry
	logger   zerolog.Logger
}

// NewSelector creates a selector over the tool registry.
func NewSelector(registry *tools.Registry, logger zerolog.Logger) *Selector {
	return &Selector{
		registry: registry,
		logger:   logger.With().Str("component", "selector").Logger(),
	}
}

// Select searches the catalog once per query facet, optionally re-ranks by
// embedding similarity, and picks the first candidate not recently played.
// When every candidate is recent the first candidate is picked anyway; a
// repeat beats returning nothing.
func (s *Selector) Select(ctx context.Context, params SelectParams) (Selection, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 5
	}

	candidates, err := s.searchFacets(ctx, params.Queries, limit, params.AllowExplicit)
	if err != nil {
		return Selection{}, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if params.UseEmbeddings && len(candidates) > 1 {
		candidates = s.rerank(ctx, params.Queries, candidates)
	}

	if len(candidates) == 0 {
		return Selection{}, nil
	}

	recent := make(map[string]bool, len(params.RecentIDs))
	for _, id := range params.RecentIDs {
		recent[id] = true
	}

	selected := candidates[0]
	for _, candidate := range candidates {
		if !recent[candidate.ID] {
			selected = candidate
			break
		}
	}

	return Selection{
		Candidates: candidates,
		Selected:   &selected,
	}, nil
}

// searchFacets issues one catalog search per query facet and merges results,
// deduplicated by id in first-seen order. Facets are queried independently;
// concatenating them into one string would skew FTS relevance.
func (s *Selector) searchFacets(ctx context.Context, queries []string, limit int, allowExplicit bool) ([]catalog.Track, error) {
	var candidates []catalog.Track
	seen := make(map[string]bool)

	var lastErr error
	failed := 0

	for _, query := range queries {
		if strings.TrimSpace(query) == "" {
			continue
		}

		out, err := s.registry.Execute(ctx, tools.ToolCatalogSearch, map[string]interface{}{
			"query":          query,
			"limit":          limit,
			"allow_explicit": allowExplicit,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("query", query).Msg("Catalog search facet failed")
			lastErr = err
			failed++
			continue
		}

		search, ok := out.(tools.SearchOutput)
		if !ok {
			continue
		}

		for _, item := range search.Items {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			candidates = append(candidates, item)
		}
	}

	// A partial facet failure degrades to fewer candidates; only a total
	// failure surfaces as an error.
	if len(candidates) == 0 && failed > 0 {
		return nil, lastErr
	}
	return candidates, nil
}

// rerank orders candidates by similarity to the combined query text. Any
// ranking failure falls back silently to catalog order.
func (s *Selector) rerank(ctx context.Context, queries []string, candidates []catalog.Track) []catalog.Track {
	ids := make([]string, len(candidates))
	byID := make(map[string]catalog.Track, len(candidates))
	for i, candidate := range candidates {
		ids[i] = candidate.ID
		byID[candidate.ID] = candidate
	}

	out, err := s.registry.Execute(ctx, tools.ToolEmbeddingsSimilarity, map[string]interface{}{
		"query":      strings.Join(queries, " "),
		"candidates": ids,
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("Similarity ranking failed, keeping catalog order")
		return candidates
	}

	sim, ok := out.(tools.SimilarityOutput)
	if !ok || len(sim.Ranked) != len(candidates) {
		return candidates
	}

	reranked := make([]catalog.Track, 0, len(candidates))
	for _, ranked := range sim.Ranked {
		candidate, ok := byID[ranked.TrackID]
		if !ok {
			return candidates
		}
		reranked = append(reranked, candidate)
	}
	return reranked
}
