// Package runtime selects and runs a decision runtime. The local runtime is
// deterministic; the llm runtime delegates candidate choice to a model but
// keeps every price and budget check in code. An adapter degrades llm to
// local after a single failure.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/curator"
	"github.com/harlan/mixcue/pkg/events"
)

// Kind names a decision runtime.
type Kind string

const (
	KindLocal Kind = "local"
	KindLLM   Kind = "llm"
)

// ParseKind validates a runtime name from configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLocal, KindLLM:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown runtime kind: %q", s)
	}
}

// Runtime produces a decision for one session.
type Runtime interface {
	Run(ctx context.Context, in curator.SessionInput) (curator.DecisionResult, error)
	Kind() Kind
}

// Adapter runs a primary runtime and falls back to a secondary one after a
// single failure. The fallback is never retried; its error is terminal.
type Adapter struct {
	primary   Runtime
	fallback  Runtime
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewAdapter wires an adapter. fallback may be nil.
func NewAdapter(primary, fallback Runtime, publisher events.Publisher, logger zerolog.Logger) (*Adapter, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary runtime is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Adapter{
		primary:   primary,
		fallback:  fallback,
		publisher: publisher,
		logger:    logger.With().Str("component", "runtime").Logger(),
	}, nil
}

// Run executes the primary runtime, degrading to the fallback on error.
func (a *Adapter) Run(ctx context.Context, in curator.SessionInput) (curator.DecisionResult, error) {
	start := time.Now()

	result, err := a.primary.Run(ctx, in)
	if err == nil {
		observability.RecordRuntimeRun(string(a.primary.Kind()), true)
		a.publishEvaluation(in, a.primary.Kind(), result, time.Since(start))
		return result, nil
	}

	observability.RecordRuntimeRun(string(a.primary.Kind()), false)

	if a.fallback == nil {
		return curator.DecisionResult{}, err
	}

	a.logger.Warn().
		Err(err).
		Str("session_id", in.SessionID).
		Str("from", string(a.primary.Kind())).
		Str("to", string(a.fallback.Kind())).
		Msg("Primary runtime failed, falling back")
	observability.RecordRuntimeFallback()

	result, err = a.fallback.Run(ctx, in)
	if err != nil {
		observability.RecordRuntimeRun(string(a.fallback.Kind()), false)
		return curator.DecisionResult{}, fmt.Errorf("fallback runtime failed: %w", err)
	}

	observability.RecordRuntimeRun(string(a.fallback.Kind()), true)
	a.publishEvaluation(in, a.fallback.Kind(), result, time.Since(start))
	return result, nil
}

func (a *Adapter) publishEvaluation(in curator.SessionInput, kind Kind, result curator.DecisionResult, elapsed time.Duration) {
	a.publisher.Publish(events.New(events.EventEvaluationCompleted, 1, map[string]interface{}{
		"session_id": in.SessionID,
		"runtime":    string(kind),
		"status":     result.Status,
		"elapsed_ms": elapsed.Milliseconds(),
	}))
}

// LocalRuntime is the deterministic runtime over the curator pipeline.
type LocalRuntime struct {
	orchestrator *curator.Orchestrator
}

func NewLocalRuntime(orchestrator *curator.Orchestrator) *LocalRuntime {
	return &LocalRuntime{orchestrator: orchestrator}
}

func (r *LocalRuntime) Kind() Kind {
	return KindLocal
}

func (r *LocalRuntime) Run(ctx context.Context, in curator.SessionInput) (curator.DecisionResult, error) {
	return r.orchestrator.Orchestrate(ctx, in)
}
