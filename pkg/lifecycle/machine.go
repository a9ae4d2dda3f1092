package lifecycle

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/ranswarm/ranswarm/pkg/errors"
)

// AgentState is one of the fixed lifecycle states.
type AgentState string

const (
	StateInitializing AgentState = "Initializing"
	StateColdStart    AgentState = "ColdStart"
	StateReady        AgentState = "Ready"
	StateBusy         AgentState = "Busy"
	StateDegraded     AgentState = "Degraded"
	// StateOffline is terminal: no rule leads out of it.
	StateOffline AgentState = "Offline"
)

// Trigger names a lifecycle transition cause.
type Trigger string

const (
	TriggerKnowledgeLoaded   Trigger = "knowledge_loaded"
	TriggerColdStartComplete Trigger = "cold_start_complete"
	TriggerQueryReceived     Trigger = "query_received"
	TriggerQueryCompleted    Trigger = "query_completed"
	TriggerHealthBreached    Trigger = "health_threshold_breached"
	TriggerHealthRecovered   Trigger = "health_recovered"
	TriggerShutdownRequested Trigger = "shutdown_requested"
)

const (
	// DefaultColdStartThreshold is the interaction count that completes
	// cold start.
	DefaultColdStartThreshold = 100
	// degradeThreshold is the health score below which Ready/Busy fall to
	// Degraded.
	degradeThreshold = 0.5
	// recoverThreshold is the health score at which Degraded may return
	// to Ready.
	recoverThreshold = 0.8
)

type rule struct {
	from    AgentState
	to      AgentState
	trigger Trigger
	guard   func(*Machine) bool
}

// rules is the full transition table. A trigger with no matching rule for
// the current state, or whose guard fails, is an invalid transition.
var rules = []rule{
	{StateInitializing, StateColdStart, TriggerKnowledgeLoaded, func(m *Machine) bool { return m.knowledgeLoaded }},
	{StateInitializing, StateOffline, TriggerShutdownRequested, func(m *Machine) bool { return m.shutdownRequested }},
	{StateColdStart, StateReady, TriggerColdStartComplete, func(m *Machine) bool { return m.interactionCount >= m.coldStartThreshold }},
	{StateColdStart, StateOffline, TriggerShutdownRequested, func(m *Machine) bool { return m.shutdownRequested }},
	{StateReady, StateBusy, TriggerQueryReceived, func(m *Machine) bool { return m.hasCurrentQuery }},
	{StateReady, StateDegraded, TriggerHealthBreached, func(m *Machine) bool { return m.health.Value() < degradeThreshold }},
	{StateReady, StateOffline, TriggerShutdownRequested, func(m *Machine) bool { return m.shutdownRequested }},
	{StateBusy, StateReady, TriggerQueryCompleted, func(m *Machine) bool { return true }},
	{StateBusy, StateDegraded, TriggerHealthBreached, func(m *Machine) bool { return m.health.Value() < degradeThreshold }},
	{StateBusy, StateOffline, TriggerShutdownRequested, func(m *Machine) bool { return m.shutdownRequested }},
	{StateDegraded, StateReady, TriggerHealthRecovered, func(m *Machine) bool { return m.health.Value() >= recoverThreshold }},
	{StateDegraded, StateOffline, TriggerShutdownRequested, func(m *Machine) bool { return m.shutdownRequested }},
}

/*
Machine is the autonomous lifecycle state machine for one agent. The state
field is never mutated directly from outside: every change goes through
Fire against the static rule table, raises domain events, and appends to
the agent's event log. Like the other engine cores it has a single logical
owner and is not internally synchronized.
*/
type Machine struct {
	agentID string
	state   AgentState
	bus     Bus

	knowledgeLoaded    bool
	shutdownRequested  bool
	hasCurrentQuery    bool
	interactionCount   int
	coldStartThreshold int

	health              HealthScore
	previousHealth      HealthScore
	consecutiveFailures int

	stateEnteredAt time.Time
	degradedSince  time.Time

	version uint64
	events  []Event
}

// NewMachine creates a machine in Initializing. A nil bus disables external
// event delivery; the internal log is always kept.
func NewMachine(agentID string, bus Bus) *Machine {
	return &Machine{
		agentID:            agentID,
		state:              StateInitializing,
		bus:                bus,
		coldStartThreshold: DefaultColdStartThreshold,
		health:             MustHealthScore(1),
		previousHealth:     MustHealthScore(1),
		stateEnteredAt:     time.Now(),
	}
}

// SetColdStartThreshold overrides the interaction count needed to leave
// ColdStart.
func (m *Machine) SetColdStartThreshold(threshold int) {
	if threshold > 0 {
		m.coldStartThreshold = threshold
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() AgentState {
	return m.state
}

// Events returns the append-only event log.
func (m *Machine) Events() []Event {
	return m.events
}

// InteractionCount returns the interactions recorded so far.
func (m *Machine) InteractionCount() int {
	return m.interactionCount
}

// Health returns the last reported health score.
func (m *Machine) Health() HealthScore {
	return m.health
}

// ConsecutiveFailures returns the current failure streak.
func (m *Machine) ConsecutiveFailures() int {
	return m.consecutiveFailures
}

/*
Fire attempts a transition. When no rule matches the (state, trigger) pair
or the rule's guard fails, the state is left unchanged and an
ErrInvalidTransition is returned: callers must treat that as a logic error,
not a transient fault.
*/
func (m *Machine) Fire(trigger Trigger) error {
	for _, r := range rules {
		if r.from != m.state || r.trigger != trigger {
			continue
		}
		if !r.guard(m) {
			return errors.ErrInvalidTransition.WithMessagef(
				"guard rejected %s in state %s", trigger, m.state,
			)
		}

		m.apply(r)
		return nil
	}

	return errors.ErrInvalidTransition.WithMessagef(
		"no rule for %s in state %s", trigger, m.state,
	)
}

func (m *Machine) apply(r rule) {
	from := m.state
	m.state = r.to
	m.stateEnteredAt = time.Now()

	log.Debug("state transition", "agent", m.agentID, "from", from, "to", r.to, "trigger", r.trigger)

	m.raise(EventStateTransitioned, map[string]any{
		"from":    string(from),
		"to":      string(r.to),
		"trigger": string(r.trigger),
	})

	switch {
	case from == StateColdStart && r.to == StateReady:
		m.raise(EventColdStartCompleted, map[string]any{
			"interactions": m.interactionCount,
		})
	case r.to == StateDegraded:
		m.degradedSince = m.stateEnteredAt
		m.raise(EventAgentDegraded, map[string]any{
			"health":       m.health.Value(),
			"recoveryPlan": m.RecoveryPlan(),
		})
	case from == StateDegraded && r.to == StateReady:
		m.raise(EventAgentRecovered, map[string]any{
			"health":           m.health.Value(),
			"degradedDuration": time.Since(m.degradedSince).String(),
		})
	}
}

func (m *Machine) raise(eventType EventType, payload map[string]any) {
	m.version++
	event := Event{
		AgentID:   m.agentID,
		Type:      eventType,
		Timestamp: time.Now(),
		Version:   m.version,
		Payload:   payload,
	}

	m.events = append(m.events, event)
	if m.bus != nil {
		m.bus.Publish(event)
	}
}

// LoadKnowledge marks the knowledge base loaded and moves the agent into
// ColdStart.
func (m *Machine) LoadKnowledge() error {
	m.knowledgeLoaded = true
	return m.Fire(TriggerKnowledgeLoaded)
}

// RecordInteraction counts one interaction and completes cold start once
// the threshold is reached.
func (m *Machine) RecordInteraction() error {
	m.interactionCount++

	if m.state == StateColdStart && m.interactionCount >= m.coldStartThreshold {
		return m.Fire(TriggerColdStartComplete)
	}

	return nil
}

// BeginQuery moves Ready to Busy for one query.
func (m *Machine) BeginQuery() error {
	m.hasCurrentQuery = true

	if err := m.Fire(TriggerQueryReceived); err != nil {
		m.hasCurrentQuery = false
		return err
	}

	return nil
}

// CompleteQuery returns the agent from Busy to Ready.
func (m *Machine) CompleteQuery() error {
	if err := m.Fire(TriggerQueryCompleted); err != nil {
		return err
	}

	m.hasCurrentQuery = false
	return nil
}

/*
UpdateHealth records a new health score and applies the threshold guards:
Ready/Busy degrade below 0.5, Degraded recovers at 0.8. Transitions the
score does not warrant are simply not fired, so UpdateHealth never returns
an invalid-transition error for an in-band score.
*/
func (m *Machine) UpdateHealth(score HealthScore) error {
	m.previousHealth = m.health
	m.health = score

	switch {
	case (m.state == StateReady || m.state == StateBusy) && score.Value() < degradeThreshold:
		return m.Fire(TriggerHealthBreached)
	case m.state == StateDegraded && score.Value() >= recoverThreshold:
		return m.Fire(TriggerHealthRecovered)
	}

	return nil
}

// RecordFailure increments the consecutive-failure streak.
func (m *Machine) RecordFailure() {
	m.consecutiveFailures++
}

// RecordSuccess resets the consecutive-failure streak.
func (m *Machine) RecordSuccess() {
	m.consecutiveFailures = 0
}

// Shutdown requests the terminal Offline state.
func (m *Machine) Shutdown() error {
	m.shutdownRequested = true
	return m.Fire(TriggerShutdownRequested)
}

/*
RecoveryPlan generates the remediation steps for a degraded agent. Severe
degradation resets learning, mild degradation prunes and re-explores, and
an active failure streak adds diagnostic steps.
*/
func (m *Machine) RecoveryPlan() []string {
	var plan []string

	if m.health.Value() < 0.3 {
		plan = append(plan, "emergency_memory_cleanup", "reset_learning_rates")
	} else {
		plan = append(plan, "prune_low_value_trajectories", "increase_exploration_temporarily")
	}

	if m.consecutiveFailures > 0 {
		plan = append(plan, "analyze_failure_patterns", "request_federated_sync")
	}

	return plan
}
