// Package lifecycle implements the autonomous agent state machine, its
// event-sourced history, and the OODA decision cycle that drives
// self-management.
package lifecycle

import (
	"sync"
	"time"
)

// EventType names a domain event raised by the state machine.
type EventType string

const (
	EventStateTransitioned      EventType = "StateTransitioned"
	EventColdStartCompleted     EventType = "ColdStartCompleted"
	EventAgentDegraded          EventType = "AgentDegraded"
	EventAgentRecovered         EventType = "AgentRecovered"
	EventAutonomousDecisionMade EventType = "AutonomousDecisionMade"
)

// Event is one domain event in an agent's history. Version is a per-agent
// monotonic sequence number, so the event log totally orders an agent's
// lifecycle.
type Event struct {
	AgentID   string         `json:"agentId"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Version   uint64         `json:"version"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Bus delivers domain events to external collaborators.
type Bus interface {
	Publish(event Event)
}

/*
MemoryBus is an in-process fan-out bus. Subscribers receive events on
buffered channels; a full subscriber drops events rather than blocking the
state machine.
*/
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a listener and returns its channel.
func (b *MemoryBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subscribers = append(b.subscribers, ch)

	return ch
}

// Publish fans the event out to every subscriber.
func (b *MemoryBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event if the subscriber is not keeping up.
		}
	}
}

/*
ReplayState folds an event log back into the agent state it produced. The
fold is pure: rebuilding an agent from history is a deterministic reduction
over StateTransitioned events, not an imperative replay of triggers.
*/
func ReplayState(events []Event) AgentState {
	state := StateInitializing

	for _, event := range events {
		if event.Type != EventStateTransitioned {
			continue
		}
		if to, ok := event.Payload["to"].(string); ok {
			state = AgentState(to)
		}
	}

	return state
}
