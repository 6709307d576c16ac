// Package events provides the fire-and-forget event publishing contract used
// by the decision pipeline. Delivery is at-least-attempted with no
// acknowledgement; subscribers are external collaborators.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the decision pipeline.
const (
	EventSelection           = "agent.selection"
	EventMixPlanned          = "agent.mix_planned"
	EventNegotiated          = "agent.negotiated"
	EventDecisionMade        = "agent.decision_made"
	EventEvaluationCompleted = "agent.evaluation_completed"
	EventBudgetAlert         = "agent.budget_alert"
)

// Event is a versioned payload published to subscribers.
type Event struct {
	ID         string      `json:"id"`
	Name       string      `json:"event_name"`
	Version    int         `json:"event_version"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh id and the current timestamp.
func New(name string, version int, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher is the capability the pipeline depends on. Implementations must
// not block the caller.
type Publisher interface {
	Publish(event Event)
}
