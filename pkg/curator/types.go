// Package curator implements the agent decision pipeline: candidate
// selection, transition planning, price negotiation and budget-bounded
// orchestration over one listening session.
package curator

import (
	"github.com/harlan/mixcue/pkg/chain"
)

// Preferences captures the session's curation preferences.
type Preferences struct {
	Genres        []string `json:"genres,omitempty"`
	Mood          string   `json:"mood,omitempty"`
	Energy        string   `json:"energy,omitempty"`
	LicenseType   string   `json:"license_type,omitempty"`
	AllowExplicit bool     `json:"allow_explicit,omitempty"`
	StemTypes     []string `json:"stem_types,omitempty"`
}

// SessionInput is the single entry-point payload for a curation decision.
type SessionInput struct {
	SessionID          string      `json:"session_id"`
	UserID             string      `json:"user_id"`
	RecentTrackIDs     []string    `json:"recent_track_ids,omitempty"` // most-recent-first, capped by caller
	BudgetRemainingUSD float64     `json:"budget_remaining_usd"`
	Preferences        Preferences `json:"preferences"`
}

// Transition kinds produced by the mixer.
const (
	TransitionHardCut       = "hard-cut"
	TransitionCrossfade     = "crossfade"
	TransitionCrossfadeLong = "crossfade-long"
)

// MixPlan is the planned transition into a track.
type MixPlan struct {
	TrackID         string `json:"track_id"`
	PreviousTrackID string `json:"previous_track_id,omitempty"`
	Transition      string `json:"transition"`
	Notes           string `json:"notes"`
}

// Reason codes surfaced on decisions and negotiations. These are result
// values, never errors.
const (
	ReasonOverBudget       = "over_budget"
	ReasonBudgetExceeded   = "budget_exceeded"
	ReasonNoTracks         = "no_tracks"
	ReasonAllRejected      = "all_rejected"
	ReasonLLMNoTrackChosen = "llm_no_track_selected"
)

// NegotiationResult is the outcome of one price/listing negotiation.
type NegotiationResult struct {
	LicenseType string          `json:"license_type"`
	PriceUSD    float64         `json:"price_usd"`
	Allowed     bool            `json:"allowed"`
	Reason      string          `json:"reason,omitempty"`
	Listings    []chain.Listing `json:"listings"` // chain-validated only
}

// Decision statuses.
const (
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
	StatusAllRejected = "all_rejected"
	StatusNoTracks    = "no_tracks"
)

// TrackDecision pairs an accepted track with its plan and negotiation.
type TrackDecision struct {
	TrackID     string            `json:"track_id"`
	MixPlan     MixPlan           `json:"mix_plan"`
	Negotiation NegotiationResult `json:"negotiation"`
}

// DecisionResult is the terminal outcome of one orchestration pass.
type DecisionResult struct {
	SessionID     string          `json:"session_id"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Tracks        []TrackDecision `json:"tracks"`
	TotalSpendUSD float64         `json:"total_spend_usd"`
}

// Approved reports whether at least one track was accepted.
func (d DecisionResult) Approved() bool {
	return d.Status == StatusApproved
}
