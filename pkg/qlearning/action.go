// Package qlearning implements the per-agent Q-learning value store:
// state-action value estimates with epsilon-greedy selection and federated
// merge across peer agents.
package qlearning

import (
	"fmt"
	"strings"
)

// Action is a response strategy an agent can pick for a query.
type Action string

const (
	// DirectAnswer responds straight from feature knowledge.
	DirectAnswer Action = "DirectAnswer"
	// ContextAnswer augments the answer with vector memory context.
	ContextAnswer Action = "ContextAnswer"
	// ConsultPeer asks a related feature agent.
	ConsultPeer Action = "ConsultPeer"
	// RequestClarification asks the user for more detail.
	RequestClarification Action = "RequestClarification"
	// Escalate routes the query to a human operator.
	Escalate Action = "Escalate"
)

// Actions returns the fixed action set in stable order.
func Actions() []Action {
	return []Action{
		DirectAnswer,
		ContextAnswer,
		ConsultPeer,
		RequestClarification,
		Escalate,
	}
}

// State identifies a decision situation. It is a value type: equality is by
// content, and Key gives the canonical string encoding used everywhere a
// state indexes a map.
type State struct {
	QueryType   string `json:"queryType"`
	Complexity  string `json:"complexity"`
	ContextHash string `json:"contextHash"`
}

// Key returns the canonical "{queryType}:{complexity}:{contextHash}"
// encoding.
func (s State) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.QueryType, s.Complexity, s.ContextHash)
}

// entryKey extends a state key with the action:
// "{queryType}:{complexity}:{contextHash}:{action}".
func entryKey(state State, action Action) string {
	return state.Key() + ":" + string(action)
}

// splitEntryKey returns the state key and action of a stored entry key.
func splitEntryKey(key string) (string, Action, bool) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], Action(key[idx+1:]), true
}
