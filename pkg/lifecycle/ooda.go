package lifecycle

import (
	"time"
)

// Situation classifies what the agent is currently facing.
type Situation string

const (
	SituationNormal    Situation = "normal"
	SituationColdStart Situation = "cold_start"
	SituationWarning   Situation = "warning"
	SituationCritical  Situation = "critical"
	SituationDegraded  Situation = "degraded"
)

// HealthTrend tracks the direction of the health score between cycles.
type HealthTrend string

const (
	TrendImproving HealthTrend = "improving"
	TrendStable    HealthTrend = "stable"
	TrendDeclining HealthTrend = "declining"
)

// trendDelta is the health change below which the trend reads as stable.
const trendDelta = 0.01

// Observation is the Observe-phase snapshot of the agent.
type Observation struct {
	State               AgentState         `json:"state"`
	Health              float64            `json:"health"`
	InteractionCount    int                `json:"interactionCount"`
	ConsecutiveFailures int                `json:"consecutiveFailures"`
	TimeInState         time.Duration      `json:"timeInState"`
	Metrics             map[string]float64 `json:"metrics,omitempty"`
}

// Orientation is the Orient-phase classification of an observation.
type Orientation struct {
	Situation   Situation   `json:"situation"`
	HealthTrend HealthTrend `json:"healthTrend"`
}

// Decision is the Decide-phase output: a self-management action label and
// the confidence behind it. It is independent of the Q-table's per-query
// action selection.
type Decision struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Observe snapshots the machine for one OODA cycle.
func (m *Machine) Observe() Observation {
	obs := Observation{
		State:               m.state,
		Health:              m.health.Value(),
		InteractionCount:    m.interactionCount,
		ConsecutiveFailures: m.consecutiveFailures,
		TimeInState:         time.Since(m.stateEnteredAt),
		Metrics:             make(map[string]float64),
	}

	switch m.state {
	case StateColdStart:
		obs.Metrics["cold_start_progress"] = float64(m.interactionCount) / float64(m.coldStartThreshold)
	case StateDegraded:
		obs.Metrics["time_in_degraded_seconds"] = time.Since(m.degradedSince).Seconds()
	}

	return obs
}

// Orient classifies an observation into a situation and a health trend.
func (m *Machine) Orient(obs Observation) Orientation {
	orientation := Orientation{HealthTrend: TrendStable}

	delta := m.health.Value() - m.previousHealth.Value()
	if delta > trendDelta {
		orientation.HealthTrend = TrendImproving
	} else if delta < -trendDelta {
		orientation.HealthTrend = TrendDeclining
	}

	switch {
	case obs.State == StateDegraded:
		orientation.Situation = SituationDegraded
	case obs.State == StateColdStart:
		orientation.Situation = SituationColdStart
	case obs.Health < 0.3:
		orientation.Situation = SituationCritical
	case obs.Health < 0.5 || obs.ConsecutiveFailures > 0:
		orientation.Situation = SituationWarning
	default:
		orientation.Situation = SituationNormal
	}

	return orientation
}

/*
Decide selects a self-management action from the per-state heuristics: cold
start explores with confidence scaled by progress, Ready exploits unless
health is declining, Degraded runs its recovery plan, Busy finishes the
in-flight query.
*/
func (m *Machine) Decide(obs Observation, orientation Orientation) Decision {
	switch obs.State {
	case StateColdStart:
		progress := obs.Metrics["cold_start_progress"]
		return Decision{
			Action:     "explore",
			Confidence: 0.5 + progress/2,
			Reasoning:  "cold start favors exploration until the interaction threshold",
		}

	case StateReady:
		if orientation.HealthTrend == TrendDeclining {
			return Decision{
				Action:     "increase_exploration",
				Confidence: obs.Health,
				Reasoning:  "health declining, widening the policy search",
			}
		}
		return Decision{
			Action:     "exploit",
			Confidence: obs.Health,
			Reasoning:  "healthy and warmed up, exploiting learned values",
		}

	case StateBusy:
		return Decision{
			Action:     "continue_query",
			Confidence: 0.9,
			Reasoning:  "query in flight",
		}

	case StateDegraded:
		return Decision{
			Action:     "execute_recovery_plan",
			Confidence: 0.7,
			Reasoning:  "degraded, running remediation steps",
		}

	default:
		return Decision{
			Action:     "wait",
			Confidence: 0.5,
			Reasoning:  "no autonomous action defined for " + string(obs.State),
		}
	}
}

// Act raises the AutonomousDecisionMade event for a decision. The decision
// itself carries no side effects; collaborators react to the event (and the
// agent records the corresponding trajectory step).
func (m *Machine) Act(obs Observation, orientation Orientation, decision Decision) {
	m.raise(EventAutonomousDecisionMade, map[string]any{
		"action":     decision.Action,
		"confidence": decision.Confidence,
		"situation":  string(orientation.Situation),
		"trend":      string(orientation.HealthTrend),
		"state":      string(obs.State),
	})
}

// Cycle runs one full Observe-Orient-Decide-Act pass and returns the
// decision.
func (m *Machine) Cycle() (Observation, Orientation, Decision) {
	obs := m.Observe()
	orientation := m.Orient(obs)
	decision := m.Decide(obs, orientation)
	m.Act(obs, orientation, decision)

	return obs, orientation, decision
}
