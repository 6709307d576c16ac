package curator

import "fmt"

// Energy levels recognized by the mixer.
const (
	EnergyHigh = "high"
	EnergyLow  = "low"
)

// PlanMix plans the transition into trackID from the previous track. Pure
// function, no I/O: high energy cuts hard, low energy gets the long
// crossfade, everything else a standard crossfade.
func PlanMix(trackID, previousTrackID, mood, energy string) MixPlan {
	transition := TransitionCrossfade
	switch energy {
	case EnergyHigh:
		transition = TransitionHardCut
	case EnergyLow:
		transition = TransitionCrossfadeLong
	}

	notes := "neutral"
	if mood != "" {
		notes = fmt.Sprintf("prioritize %s texture", mood)
	}

	return MixPlan{
		TrackID:         trackID,
		PreviousTrackID: previousTrackID,
		Transition:      transition,
		Notes:           notes,
	}
}
