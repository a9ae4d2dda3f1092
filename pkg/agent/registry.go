package agent

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ranswarm/ranswarm/pkg/errors"
)

/*
Registry tracks the agents of one swarm and routes queries to the right
specialist by feature. Unlike the engine cores the registry is shared
between callers, so it carries its own lock.
*/
type Registry struct {
	mu sync.RWMutex
	// agents is keyed by agent id; features maps a feature name to the
	// id of the agent serving it.
	agents   map[string]*FeatureAgent
	features map[string]string
}

// NewRegistry creates an empty swarm registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:   make(map[string]*FeatureAgent),
		features: make(map[string]string),
	}
}

// Register adds an agent to the swarm, replacing any previous agent for the
// same feature.
func (r *Registry) Register(agent *FeatureAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents[agent.ID()] = agent
	r.features[agent.Feature()] = agent.ID()

	log.Info("agent registered", "id", agent.ID(), "feature", agent.Feature())
}

// Deregister removes an agent.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}

	delete(r.agents, id)
	if r.features[agent.Feature()] == id {
		delete(r.features, agent.Feature())
	}
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (*FeatureAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, errors.ErrAgentNotFound.WithMessagef("agent %s not registered", id)
	}

	return agent, nil
}

// Route returns the agent specializing in the given feature.
func (r *Registry) Route(feature string) (*FeatureAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.features[feature]
	if !ok {
		return nil, errors.ErrAgentNotFound.WithMessagef("no agent serves feature %s", feature)
	}

	return r.agents[id], nil
}

// List returns all registered agents.
func (r *Registry) List() []*FeatureAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*FeatureAgent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent)
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Stats aggregates per-agent statistics keyed by agent id.
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.agents))
	for id, agent := range r.agents {
		out[id] = agent.Stats()
	}
	return out
}
