package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	evt := New(EventDecisionMade, 1, map[string]interface{}{"session_id": "s-1"})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, EventDecisionMade, evt.Name)
	assert.Equal(t, 1, evt.Version)
	assert.WithinDuration(t, time.Now().UTC(), evt.OccurredAt, time.Second)
}

func TestEmitterPublish(t *testing.T) {
	emitter := NewEmitter()

	var mu sync.Mutex
	received := []Event{}
	done := make(chan struct{})

	emitter.On(EventBudgetAlert, func(evt Event) {
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		close(done)
	})

	emitter.Publish(New(EventBudgetAlert, 1, nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventBudgetAlert, received[0].Name)
}

func TestEmitterPublishNoHandlers(t *testing.T) {
	emitter := NewEmitter()

	// Must not panic or block.
	emitter.Publish(New(EventSelection, 1, nil))
}

func TestEmitterOnAny(t *testing.T) {
	emitter := NewEmitter()

	got := make(chan string, 2)
	emitter.OnAny(func(evt Event) {
		got <- evt.Name
	})

	emitter.Publish(New(EventSelection, 1, nil))
	emitter.Publish(New(EventNegotiated, 1, nil))

	names := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-got:
			names[name] = true
		case <-time.After(time.Second):
			t.Fatal("wildcard handler was not invoked")
		}
	}

	assert.True(t, names[EventSelection])
	assert.True(t, names[EventNegotiated])
}

func TestEmitterSurvivesPanickingHandler(t *testing.T) {
	emitter := NewEmitter()

	emitter.On(EventDecisionMade, func(Event) {
		panic("handler bug")
	})

	delivered := make(chan struct{})
	emitter.On(EventDecisionMade, func(Event) {
		close(delivered)
	})

	emitter.Publish(New(EventDecisionMade, 1, nil))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("sibling handler was not invoked")
	}
}
