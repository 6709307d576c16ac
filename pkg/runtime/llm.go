package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/curator"
	"github.com/harlan/mixcue/pkg/llm"
	"github.com/harlan/mixcue/pkg/pricing"
	"github.com/harlan/mixcue/pkg/tools"
)

const (
	defaultMaxRounds   = 6
	defaultCallTimeout = 30 * time.Second
	defaultMaxTokens   = 1024
)

// LLMConfig configures the model-driven runtime.
type LLMConfig struct {
	Credential  llm.Credential
	Temperature float64
	MaxTokens   int
	MaxRounds   int
	CallTimeout time.Duration
}

// LLMRuntime lets a model explore the catalog through tools and propose
// purchases. The model only proposes; budget acceptance, price arithmetic
// and mix planning stay in code.
type LLMRuntime struct {
	provider llm.Provider
	registry *tools.Registry
	logger   zerolog.Logger
	cfg      LLMConfig
}

// NewLLMRuntime creates the runtime. An unconfigured credential is not an
// error here; Run fails instead, which lets the adapter degrade to local.
func NewLLMRuntime(cfg LLMConfig, registry *tools.Registry, logger zerolog.Logger) *LLMRuntime {
	r := &LLMRuntime{
		registry: registry,
		logger:   logger.With().Str("component", "llm_runtime").Logger(),
		cfg:      cfg,
	}
	if cfg.Credential.Configured() {
		provider, err := llm.NewProvider(cfg.Credential)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Invalid provider credential")
		} else {
			r.provider = provider
		}
	}
	return r
}

// newLLMRuntimeWithProvider is a test seam.
func newLLMRuntimeWithProvider(cfg LLMConfig, provider llm.Provider, registry *tools.Registry, logger zerolog.Logger) *LLMRuntime {
	r := NewLLMRuntime(cfg, registry, logger)
	r.provider = provider
	return r
}

func (r *LLMRuntime) Kind() Kind {
	return KindLLM
}

// Run drives the tool loop to completion and converts the model's proposals
// into a budget-checked decision.
func (r *LLMRuntime) Run(ctx context.Context, in curator.SessionInput) (curator.DecisionResult, error) {
	if r.provider == nil {
		return curator.DecisionResult{}, fmt.Errorf("llm runtime has no configured provider")
	}

	start := time.Now()

	timeout := r.cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, rounds, err := r.converse(ctx, in)
	observability.RecordLLMRounds(rounds)
	if err != nil {
		return curator.DecisionResult{}, err
	}

	result := r.buildDecision(in, content)
	observability.RecordDecision(string(KindLLM), result.Status, time.Since(start), result.TotalSpendUSD)
	return result, nil
}

// converse runs the bounded tool loop and returns the model's final text.
func (r *LLMRuntime) converse(ctx context.Context, in curator.SessionInput) (string, int, error) {
	maxRounds := r.cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	maxTokens := r.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	specs := llm.SpecsFromDefinitions(r.registry.Definitions())
	messages := []llm.Message{{Role: "user", Content: userPrompt(in)}}

	for round := 1; round <= maxRounds; round++ {
		select {
		case <-ctx.Done():
			return "", round - 1, ctx.Err()
		default:
		}

		response, err := r.provider.Call(ctx, llm.Request{
			Model:        r.cfg.Credential.Model,
			Messages:     messages,
			Tools:        specs,
			Temperature:  r.cfg.Temperature,
			MaxTokens:    maxTokens,
			SystemPrompt: systemPrompt(r.registry.Definitions()),
		})
		if err != nil {
			return "", round, fmt.Errorf("provider call failed: %w", err)
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, round, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		messages = append(messages, r.executeRound(ctx, response.ToolCalls)...)
	}

	return "", maxRounds, fmt.Errorf("tool loop did not converge within %d rounds", maxRounds)
}

// executeRound runs one round's tool calls concurrently. Tool failures are
// reported back to the model as results, never as loop errors.
func (r *LLMRuntime) executeRound(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    r.executeTool(ctx, call),
			}
		}(i, call)
	}
	wg.Wait()

	return results
}

func (r *LLMRuntime) executeTool(ctx context.Context, call llm.ToolCall) string {
	out, err := r.registry.Execute(ctx, call.Name, call.Parameters)
	if err != nil {
		r.logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
		return fmt.Sprintf("error: %v", err)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(encoded)
}

// buildDecision converts proposals to a decision. Picks are accepted in
// order while their cumulative price fits the budget; unaffordable picks are
// skipped, not terminal.
func (r *LLMRuntime) buildDecision(in curator.SessionInput, content string) curator.DecisionResult {
	picks := ParsePicks(content)
	if len(picks) == 0 {
		r.logger.Info().Str("session_id", in.SessionID).Msg("Model proposed no tracks")
		return curator.DecisionResult{
			SessionID: in.SessionID,
			Status:    curator.StatusRejected,
			Reason:    curator.ReasonLLMNoTrackChosen,
			Tracks:    []curator.TrackDecision{},
		}
	}

	defaultLicense := in.Preferences.LicenseType
	if defaultLicense == "" {
		defaultLicense = pricing.LicensePersonal
	}

	previousTrackID := ""
	if len(in.RecentTrackIDs) > 0 {
		previousTrackID = in.RecentTrackIDs[0]
	}

	budgetLeft := in.BudgetRemainingUSD
	accepted := []curator.TrackDecision{}
	totalSpend := 0.0

	for _, pick := range picks {
		price := pricing.RoundCents(pick.PriceUSD)
		if price > budgetLeft {
			r.logger.Debug().
				Str("track_id", pick.TrackID).
				Float64("price_usd", price).
				Float64("budget_left_usd", budgetLeft).
				Msg("Proposed track over remaining budget")
			continue
		}

		license := pick.LicenseType
		if license == "" {
			license = defaultLicense
		}

		budgetLeft = pricing.RoundCents(budgetLeft - price)
		totalSpend = pricing.RoundCents(totalSpend + price)
		accepted = append(accepted, curator.TrackDecision{
			TrackID: pick.TrackID,
			MixPlan: curator.PlanMix(pick.TrackID, previousTrackID, in.Preferences.Mood, in.Preferences.Energy),
			Negotiation: curator.NegotiationResult{
				LicenseType: license,
				PriceUSD:    price,
				Allowed:     true,
			},
		})
		previousTrackID = pick.TrackID
	}

	result := curator.DecisionResult{
		SessionID:     in.SessionID,
		Tracks:        accepted,
		TotalSpendUSD: totalSpend,
	}
	if len(accepted) > 0 {
		result.Status = curator.StatusApproved
	} else {
		result.Status = curator.StatusAllRejected
		result.Reason = curator.ReasonBudgetExceeded
	}
	return result
}

func systemPrompt(defs []*tools.Definition) string {
	var b strings.Builder
	b.WriteString("You are a music curation agent for a stem licensing marketplace. ")
	b.WriteString("Use the available tools to find tracks matching the session preferences and to quote licensed prices. Tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}
	b.WriteString("\nWhen you have decided, reply with one line per chosen track, nothing else:\n")
	b.WriteString("TRACK: <track id> | LICENSE: <personal|remix|commercial> | PRICE: <usd>\n")
	b.WriteString("Never propose spending beyond the stated budget. If nothing fits, reply with NONE.")
	return b.String()
}

func userPrompt(in curator.SessionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Budget remaining: $%.2f\n", in.BudgetRemainingUSD)
	if len(in.Preferences.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(in.Preferences.Genres, ", "))
	}
	if in.Preferences.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", in.Preferences.Mood)
	}
	if in.Preferences.Energy != "" {
		fmt.Fprintf(&b, "Energy: %s\n", in.Preferences.Energy)
	}
	if in.Preferences.LicenseType != "" {
		fmt.Fprintf(&b, "License type: %s\n", in.Preferences.LicenseType)
	}
	if len(in.Preferences.StemTypes) > 0 {
		fmt.Fprintf(&b, "Stem types: %s\n", strings.Join(in.Preferences.StemTypes, ", "))
	}
	if len(in.RecentTrackIDs) > 0 {
		fmt.Fprintf(&b, "Recently played, avoid if possible: %s\n", strings.Join(in.RecentTrackIDs, ", "))
	}
	b.WriteString("Curate the next tracks for this session.")
	return b.String()
}
