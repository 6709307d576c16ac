package tools

import (
	"context"
	"fmt"

	"github.com/harlan/mixcue/pkg/catalog"
	"github.com/harlan/mixcue/pkg/embedding"
	"github.com/harlan/mixcue/pkg/pricing"
)

// Built-in tool names.
const (
	ToolCatalogSearch        = "catalog.search"
	ToolPricingQuote         = "pricing.quote"
	ToolEmbeddingsSimilarity = "embeddings.similarity"
	ToolAnalyticsSignal      = "analytics.signal"
)

// SearchOutput is the catalog.search result.
type SearchOutput struct {
	Items []catalog.Track `json:"items"`
}

// QuoteOutput is the pricing.quote result.
type QuoteOutput struct {
	PriceUSD float64 `json:"price_usd"`
}

// SimilarityOutput is the embeddings.similarity result, descending by score.
type SimilarityOutput struct {
	Ranked []embedding.Ranked `json:"ranked"`
}

// SignalOutput is the analytics.signal result.
type SignalOutput struct {
	TrackID string  `json:"track_id"`
	Plays   int     `json:"plays"`
	Score   float64 `json:"score"`
}

// BuiltinDeps carries the stores the built-in tools read from.
type BuiltinDeps struct {
	Catalog    *catalog.Store
	Pricing    *pricing.Engine
	Embeddings *embedding.Store
}

// RegisterBuiltins registers the standard tool set.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	if deps.Catalog == nil {
		return fmt.Errorf("catalog store is required")
	}
	if deps.Pricing == nil {
		return fmt.Errorf("pricing engine is required")
	}
	if deps.Embeddings == nil {
		return fmt.Errorf("embedding store is required")
	}

	defs := []Definition{
		{
			Name:        ToolCatalogSearch,
			Description: "Search the track catalog by free text over titles and genres.",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Free-text search query", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum results to return"},
				{Name: "allow_explicit", Type: "boolean", Description: "Include explicit tracks"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				query, _ := params["query"].(string)
				limit := intParam(params, "limit", 10)
				allowExplicit, _ := params["allow_explicit"].(bool)

				items, err := deps.Catalog.Search(ctx, query, limit, allowExplicit)
				if err != nil {
					return nil, err
				}
				return SearchOutput{Items: items}, nil
			},
		},
		{
			Name:        ToolPricingQuote,
			Description: "Quote the license price for a stem in USD.",
			Parameters: []Parameter{
				{Name: "license_type", Type: "string", Description: "personal, remix or commercial", Required: true},
				{Name: "volume", Type: "integer", Description: "Caller purchase history count"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				licenseType, _ := params["license_type"].(string)
				volume := intParam(params, "volume", 1)

				price, err := deps.Pricing.Quote(licenseType, volume)
				if err != nil {
					return nil, err
				}
				return QuoteOutput{PriceUSD: price}, nil
			},
		},
		{
			Name:        ToolEmbeddingsSimilarity,
			Description: "Rank candidate tracks by similarity to a query, descending.",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Query text to rank against", Required: true},
				{Name: "candidates", Type: "array", Description: "Candidate track ids", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				query, _ := params["query"].(string)
				ids, err := stringSliceParam(params, "candidates")
				if err != nil {
					return nil, err
				}

				items := make([]embedding.Item, 0, len(ids))
				for _, id := range ids {
					track, err := deps.Catalog.Get(ctx, id)
					if err != nil {
						return nil, fmt.Errorf("candidate lookup failed: %w", err)
					}
					items = append(items, embedding.Item{ID: track.ID, Text: track.SearchText()})
				}

				return SimilarityOutput{Ranked: deps.Embeddings.Rank(query, items)}, nil
			},
		},
		{
			Name:        ToolAnalyticsSignal,
			Description: "Play-count signal for a track.",
			Parameters: []Parameter{
				{Name: "track_id", Type: "string", Description: "Track id", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				// Analytics ingestion is an external system; this stub keeps
				// the tool surface stable for prompts and tests.
				trackID, _ := params["track_id"].(string)
				return SignalOutput{TrackID: trackID}, nil
			},
		},
	}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func intParam(params map[string]interface{}, name string, def int) int {
	switch v := params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringSliceParam(params map[string]interface{}, name string) ([]string, error) {
	raw, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("missing parameter: %s", name)
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s must contain strings", name)
			}
			result = append(result, s)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("parameter %s must be an array", name)
	}
}
