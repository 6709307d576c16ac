package curator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/catalog"
	"github.com/harlan/mixcue/pkg/events"
	"github.com/harlan/mixcue/pkg/pricing"
)

// PurchaseHistory supplies the caller's purchase count, which drives the
// volume discount. Optional.
type PurchaseHistory interface {
	PurchaseCount(ctx context.Context, userID string) (int, error)
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Selector       *Selector
	Negotiator     *Negotiator
	Publisher      events.Publisher
	History        PurchaseHistory
	Logger         zerolog.Logger
	CandidateLimit int
	UseEmbeddings  bool
}

// Orchestrator sequences selection, mix planning and negotiation across
// candidates under one running budget.
type Orchestrator struct {
	selector       *Selector
	negotiator     *Negotiator
	publisher      events.Publisher
	history        PurchaseHistory
	logger         zerolog.Logger
	candidateLimit int
	useEmbeddings  bool
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if cfg.Negotiator == nil {
		return nil, fmt.Errorf("negotiator is required")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}

	return &Orchestrator{
		selector:       cfg.Selector,
		negotiator:     cfg.Negotiator,
		publisher:      publisher,
		history:        cfg.History,
		logger:         cfg.Logger.With().Str("component", "orchestrator").Logger(),
		candidateLimit: cfg.CandidateLimit,
		useEmbeddings:  cfg.UseEmbeddings,
	}, nil
}

// Orchestrate runs the full decision pipeline for one session. The candidate
// loop is strictly sequential: the running budget is threaded through in
// order, and it alone decides when the pass ends. Event emission is
// observational; apart from the negotiator's I/O the pass is a pure fold
// over candidates.
func (o *Orchestrator) Orchestrate(ctx context.Context, in SessionInput) (DecisionResult, error) {
	start := time.Now()
	logger := o.logger.With().Str("session_id", in.SessionID).Logger()

	licenseType := in.Preferences.LicenseType
	if licenseType == "" {
		licenseType = pricing.LicensePersonal
	}

	selection, err := o.selector.Select(ctx, SelectParams{
		Queries:       buildQueries(in.Preferences),
		RecentIDs:     in.RecentTrackIDs,
		AllowExplicit: in.Preferences.AllowExplicit,
		UseEmbeddings: o.useEmbeddings,
		Limit:         o.candidateLimit,
	})
	if err != nil {
		return DecisionResult{}, fmt.Errorf("candidate selection failed: %w", err)
	}

	if len(selection.Candidates) == 0 {
		logger.Info().Msg("No candidates found for session preferences")
		result := DecisionResult{
			SessionID: in.SessionID,
			Status:    StatusNoTracks,
			Reason:    ReasonNoTracks,
			Tracks:    []TrackDecision{},
		}
		o.publishDecision(in, result)
		observability.RecordDecision("local", result.Status, time.Since(start), 0)
		return result, nil
	}

	o.publisher.Publish(events.New(events.EventSelection, 1, map[string]interface{}{
		"session_id":    in.SessionID,
		"candidate_ids": candidateIDs(selection.Candidates),
		"selected_id":   selection.Selected.ID,
	}))

	volume := o.purchaseVolume(ctx, in.UserID)

	// The orchestrator exclusively owns budgetLeft for the duration of this
	// call.
	budgetLeft := in.BudgetRemainingUSD
	previousTrackID := ""
	if len(in.RecentTrackIDs) > 0 {
		previousTrackID = in.RecentTrackIDs[0]
	}

	accepted := []TrackDecision{}
	totalSpend := 0.0

	for _, candidate := range selection.Candidates {
		// Budget exhausted: no further candidates are evaluated, even free
		// ones.
		if budgetLeft <= 0 {
			break
		}

		plan := PlanMix(candidate.ID, previousTrackID, in.Preferences.Mood, in.Preferences.Energy)
		o.publisher.Publish(events.New(events.EventMixPlanned, 1, map[string]interface{}{
			"session_id": in.SessionID,
			"mix_plan":   plan,
		}))

		negotiation, err := o.negotiator.Negotiate(ctx, NegotiationRequest{
			TrackID:            candidate.ID,
			LicenseType:        licenseType,
			BudgetRemainingUSD: budgetLeft,
			StemTypes:          in.Preferences.StemTypes,
			Volume:             volume,
		})
		if err != nil {
			return DecisionResult{}, fmt.Errorf("negotiation failed for track %s: %w", candidate.ID, err)
		}

		o.publisher.Publish(events.New(events.EventNegotiated, 1, map[string]interface{}{
			"session_id":  in.SessionID,
			"track_id":    candidate.ID,
			"allowed":     negotiation.Allowed,
			"price_usd":   negotiation.PriceUSD,
			"reason":      negotiation.Reason,
			"listing_ids": listingIDs(negotiation),
		}))

		if negotiation.Allowed {
			budgetLeft = pricing.RoundCents(budgetLeft - negotiation.PriceUSD)
			totalSpend = pricing.RoundCents(totalSpend + negotiation.PriceUSD)
			accepted = append(accepted, TrackDecision{
				TrackID:     candidate.ID,
				MixPlan:     plan,
				Negotiation: negotiation,
			})
		} else {
			logger.Debug().
				Str("track_id", candidate.ID).
				Str("reason", negotiation.Reason).
				Float64("price_usd", negotiation.PriceUSD).
				Msg("Candidate rejected")
		}

		// Mix continuity is independent of purchase success.
		previousTrackID = candidate.ID
	}

	result := DecisionResult{
		SessionID:     in.SessionID,
		Tracks:        accepted,
		TotalSpendUSD: totalSpend,
	}
	if len(accepted) > 0 {
		result.Status = StatusApproved
	} else {
		result.Status = StatusAllRejected
		result.Reason = ReasonAllRejected
	}

	logger.Info().
		Str("status", result.Status).
		Int("accepted", len(accepted)).
		Float64("spend_usd", totalSpend).
		Msg("Decision made")

	o.publishDecision(in, result)
	observability.RecordDecision("local", result.Status, time.Since(start), totalSpend)

	return result, nil
}

func (o *Orchestrator) publishDecision(in SessionInput, result DecisionResult) {
	o.publisher.Publish(events.New(events.EventDecisionMade, 1, map[string]interface{}{
		"session_id":      in.SessionID,
		"user_id":         in.UserID,
		"status":          result.Status,
		"reason":          result.Reason,
		"track_ids":       decisionTrackIDs(result),
		"total_spend_usd": result.TotalSpendUSD,
	}))
}

func (o *Orchestrator) purchaseVolume(ctx context.Context, userID string) int {
	if o.history == nil {
		return 1
	}
	count, err := o.history.PurchaseCount(ctx, userID)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("Purchase history lookup failed")
		return 1
	}
	return count
}

// buildQueries flattens preferences into one query per facet: every genre
// plus the mood, deduplicated.
func buildQueries(prefs Preferences) []string {
	var queries []string
	seen := make(map[string]bool)

	add := func(q string) {
		if q == "" || seen[q] {
			return
		}
		seen[q] = true
		queries = append(queries, q)
	}

	for _, genre := range prefs.Genres {
		add(genre)
	}
	add(prefs.Mood)

	return queries
}

func candidateIDs(candidates []catalog.Track) []string {
	ids := make([]string, len(candidates))
	for i, candidate := range candidates {
		ids[i] = candidate.ID
	}
	return ids
}

func listingIDs(negotiation NegotiationResult) []string {
	ids := make([]string, len(negotiation.Listings))
	for i, listing := range negotiation.Listings {
		ids[i] = listing.ListingID
	}
	return ids
}

func decisionTrackIDs(result DecisionResult) []string {
	ids := make([]string, len(result.Tracks))
	for i, track := range result.Tracks {
		ids[i] = track.TrackID
	}
	return ids
}
