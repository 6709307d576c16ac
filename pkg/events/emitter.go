package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler is a function that handles a published event.
type Handler func(event Event)

// Emitter broadcasts events to registered handlers.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wildcard []Handler
}

// NewEmitter creates a new event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a specific event name.
func (e *Emitter) On(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers[name] = append(e.handlers[name], handler)
}

// OnAny registers a handler invoked for every event.
func (e *Emitter) OnAny(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wildcard = append(e.wildcard, handler)
}

// Publish delivers the event to all matching handlers. Handlers run
// asynchronously so publishers never block; a panicking or slow handler
// cannot abort the pipeline.
func (e *Emitter) Publish(event Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[event.Name])+len(e.wildcard))
	handlers = append(handlers, e.handlers[event.Name]...)
	handlers = append(handlers, e.wildcard...)
	e.mu.RUnlock()

	for _, handler := range handlers {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("event", event.Name).
						Interface("panic", r).
						Msg("Event handler panicked")
				}
			}()
			handler(event)
		}()
	}
}

// Nop is a Publisher that discards all events.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(Event) {}
