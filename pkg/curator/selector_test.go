package curator

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlan/mixcue/pkg/catalog"
	"github.com/harlan/mixcue/pkg/embedding"
	"github.com/harlan/mixcue/pkg/tools"
)

// fakeCatalogRegistry registers a catalog.search tool serving canned results
// per query and records the queries it saw.
func fakeCatalogRegistry(t *testing.T, results map[string][]catalog.Track, queries *[]string) *tools.Registry {
	t.Helper()

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Definition{
		Name:        tools.ToolCatalogSearch,
		Description: "test catalog",
		Parameters: []tools.Parameter{
			{Name: "query", Type: "string", Description: "q", Required: true},
			{Name: "limit", Type: "integer", Description: "l"},
			{Name: "allow_explicit", Type: "boolean", Description: "e"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query := params["query"].(string)
			if queries != nil {
				*queries = append(*queries, query)
			}
			return tools.SearchOutput{Items: results[query]}, nil
		},
	}))
	return registry
}

func registerSimilarity(t *testing.T, registry *tools.Registry, handler tools.Handler) {
	t.Helper()
	require.NoError(t, registry.Register(tools.Definition{
		Name:        tools.ToolEmbeddingsSimilarity,
		Description: "test similarity",
		Parameters: []tools.Parameter{
			{Name: "query", Type: "string", Description: "q", Required: true},
			{Name: "candidates", Type: "array", Description: "c", Required: true},
		},
		Handler: handler,
	}))
}

func TestSelectQueriesEachFacetIndependently(t *testing.T) {
	var seen []string
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"house":   {{ID: "t1", Title: "One"}},
		"techno":  {{ID: "t2", Title: "Two"}},
		"dreamy":  nil,
	}, &seen)

	selector := NewSelector(registry, zerolog.Nop())

	_, err := selector.Select(context.Background(), SelectParams{
		Queries: []string{"house", "techno", "dreamy"},
		Limit:   5,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"house", "techno", "dreamy"}, seen)
}

func TestSelectDedupsAcrossFacets(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"house":  {{ID: "t1"}, {ID: "t2"}},
		"techno": {{ID: "t2"}, {ID: "t3"}},
	}, nil)

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries: []string{"house", "techno"},
		Limit:   5,
	})
	require.NoError(t, err)

	ids := make([]string, len(selection.Candidates))
	for i, c := range selection.Candidates {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
}

func TestSelectAvoidsRecentTracks(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"house": {{ID: "t1"}, {ID: "t2"}, {ID: "t3"}},
	}, nil)

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries:   []string{"house"},
		RecentIDs: []string{"t1", "t2"},
		Limit:     5,
	})
	require.NoError(t, err)

	require.NotNil(t, selection.Selected)
	assert.Equal(t, "t3", selection.Selected.ID)
}

func TestSelectRepeatsWhenAllRecent(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"house": {{ID: "t1"}, {ID: "t2"}},
	}, nil)

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries:   []string{"house"},
		RecentIDs: []string{"t1", "t2"},
		Limit:     5,
	})
	require.NoError(t, err)

	// A repeat beats returning nothing.
	require.NotNil(t, selection.Selected)
	assert.Equal(t, "t1", selection.Selected.ID)
}

func TestSelectEmptyCatalog(t *testing.T) {
	registry := fakeCatalogRegistry(t, nil, nil)

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries: []string{"house"},
		Limit:   5,
	})
	require.NoError(t, err)

	assert.Nil(t, selection.Selected)
	assert.Empty(t, selection.Candidates)
}

func TestSelectRerankOrdersBySimilarity(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"chill": {{ID: "t1", Title: "Heavy Metal Storm"}, {ID: "t2", Title: "chill evening waves"}},
	}, nil)
	registerSimilarity(t, registry, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return tools.SimilarityOutput{Ranked: []embedding.Ranked{
			{TrackID: "t2", Score: 0.9},
			{TrackID: "t1", Score: 0.1},
		}}, nil
	})

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries:       []string{"chill"},
		UseEmbeddings: true,
		Limit:         5,
	})
	require.NoError(t, err)

	require.NotNil(t, selection.Selected)
	assert.Equal(t, "t2", selection.Selected.ID)
	assert.Equal(t, "t2", selection.Candidates[0].ID)
}

func TestSelectRerankFailureFallsBackToCatalogOrder(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"chill": {{ID: "t1"}, {ID: "t2"}},
	}, nil)
	registerSimilarity(t, registry, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("no candidate embeddings")
	})

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries:       []string{"chill"},
		UseEmbeddings: true,
		Limit:         5,
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", selection.Candidates[0].ID)
}

func TestSelectSingleCandidateSkipsRerank(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"chill": {{ID: "t1"}},
	}, nil)
	// No similarity tool registered: reranking a single candidate must not
	// be attempted at all.

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries:       []string{"chill"},
		UseEmbeddings: true,
		Limit:         5,
	})
	require.NoError(t, err)
	require.NotNil(t, selection.Selected)
	assert.Equal(t, "t1", selection.Selected.ID)
}

func TestSelectLimitTruncates(t *testing.T) {
	registry := fakeCatalogRegistry(t, map[string][]catalog.Track{
		"house": {{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}},
	}, nil)

	selector := NewSelector(registry, zerolog.Nop())

	selection, err := selector.Select(context.Background(), SelectParams{
		Queries: []string{"house"},
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Len(t, selection.Candidates, 2)
}
