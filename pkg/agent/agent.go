// Package agent wires the engine cores together: one FeatureAgent owns a
// vector memory, a Q-table, a trajectory buffer and a lifecycle machine,
// and serializes all access to them behind a single mutex.
package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ranswarm/ranswarm/pkg/errors"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/memory"
	"github.com/ranswarm/ranswarm/pkg/metrics"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
	"github.com/ranswarm/ranswarm/pkg/replay"
)

// Config assembles the settings for one feature agent.
type Config struct {
	// ID uniquely names the agent instance.
	ID string
	// Feature is the network feature this agent specializes in, e.g.
	// "handover" or "carrier-aggregation".
	Feature string

	QTable qlearning.Config
	Buffer replay.Config
	Memory memory.Config

	// ColdStartThreshold overrides the interactions needed to warm up.
	ColdStartThreshold int
	// SearchK is how many contextual memories a query retrieves.
	SearchK int
	// Seed makes exploration and sampling reproducible; 0 seeds from the
	// clock.
	Seed int64
}

// DefaultAgentConfig returns the engine defaults for a named feature.
func DefaultAgentConfig(id, feature string) Config {
	return Config{
		ID:      id,
		Feature: feature,
		QTable:  qlearning.DefaultConfig(),
		Buffer:  replay.DefaultConfig(),
		Memory:  memory.DefaultConfig(),
		SearchK: 5,
	}
}

// Query is one inbound question for an agent.
type Query struct {
	Text       string `json:"text"`
	QueryType  string `json:"queryType"`
	Complexity string `json:"complexity"`
}

// Response is the decision an agent reached for a query.
type Response struct {
	AgentID   string               `json:"agentId"`
	Action    qlearning.Action     `json:"action"`
	Explored  bool                 `json:"explored"`
	State     qlearning.State      `json:"state"`
	Context   []memory.Memory      `json:"context,omitempty"`
	Decision  lifecycle.Decision   `json:"decision"`
	Lifecycle lifecycle.AgentState `json:"lifecycle"`
}

// KnowledgeEntry is one document seeded into the agent's memory.
type KnowledgeEntry struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// pending holds the last unanswered decision so delayed feedback can close
// the Bellman loop.
type pending struct {
	state  qlearning.State
	action qlearning.Action
}

/*
FeatureAgent is one autonomous specialist in the swarm. It is logically
single-threaded: the mutex serializes queries, feedback, merges and
checkpoints, and the Busy lifecycle state structurally rejects a second
concurrent query.
*/
type FeatureAgent struct {
	mu     sync.Mutex
	config Config

	memory  *memory.VectorMemory
	qtable  *qlearning.QTable
	buffer  *replay.Buffer
	machine *lifecycle.Machine
	metrics *metrics.DecisionMetrics

	pending   *pending
	lastState qlearning.State
}

// NewFeatureAgent assembles an agent from its cores. A nil bus disables
// external event delivery.
func NewFeatureAgent(config Config, embedder memory.Embedder, bus lifecycle.Bus) *FeatureAgent {
	if config.SearchK <= 0 {
		config.SearchK = 5
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	machine := lifecycle.NewMachine(config.ID, bus)
	machine.SetColdStartThreshold(config.ColdStartThreshold)

	memConfig := config.Memory
	memConfig.Seed = seed

	return &FeatureAgent{
		config:  config,
		memory:  memory.NewVectorMemory(embedder, memConfig),
		qtable:  qlearning.New(config.QTable, rand.New(rand.NewSource(seed))),
		buffer:  replay.NewBuffer(config.Buffer, rand.New(rand.NewSource(seed+1))),
		machine: machine,
		metrics: metrics.NewDecisionMetrics(),
	}
}

// ID returns the agent identifier.
func (fa *FeatureAgent) ID() string {
	return fa.config.ID
}

// Feature returns the network feature this agent serves.
func (fa *FeatureAgent) Feature() string {
	return fa.config.Feature
}

// State returns the current lifecycle state.
func (fa *FeatureAgent) State() lifecycle.AgentState {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.machine.State()
}

// LoadKnowledge seeds the vector memory and moves the agent from
// Initializing into ColdStart.
func (fa *FeatureAgent) LoadKnowledge(ctx context.Context, entries []KnowledgeEntry) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	for _, entry := range entries {
		before := fa.memory.Len()
		if _, err := fa.memory.Store(ctx, entry.Content, memory.Metadata{
			Timestamp: time.Now(),
			Tags:      entry.Tags,
		}); err != nil {
			return err
		}
		fa.metrics.RecordStore(fa.memory.Len() == before)
	}

	log.Info("knowledge loaded", "agent", fa.config.ID, "entries", len(entries))

	return fa.machine.LoadKnowledge()
}

/*
HandleQuery runs one full decision: retrieve contextual memories, run the
OODA cycle, select an action epsilon-greedily, and record the trajectory
step. In Ready the agent passes through Busy for the duration of the call;
in ColdStart it answers while accumulating warm-up interactions. Any other
state rejects the query.
*/
func (fa *FeatureAgent) HandleQuery(ctx context.Context, query Query) (*Response, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	started := time.Now()
	busy := false

	switch fa.machine.State() {
	case lifecycle.StateReady:
		if err := fa.machine.BeginQuery(); err != nil {
			return nil, err
		}
		busy = true
	case lifecycle.StateColdStart:
		// Warm-up queries are answered without the Busy round trip.
	default:
		return nil, errors.ErrAgentBusy.WithMessagef(
			"agent %s cannot take queries in state %s", fa.config.ID, fa.machine.State(),
		)
	}

	searchStarted := time.Now()
	memories, err := fa.memory.Search(ctx, query.Text, fa.config.SearchK)
	if err != nil {
		if busy {
			_ = fa.machine.CompleteQuery()
		}
		return nil, err
	}
	fa.metrics.RecordSearch(time.Since(searchStarted))

	state := qlearning.State{
		QueryType:   query.QueryType,
		Complexity:  query.Complexity,
		ContextHash: contextHash(memories),
	}

	_, _, decision := fa.machine.Cycle()

	action, explored := fa.qtable.SelectAction(state)
	fa.buffer.Record(replay.Step{
		State:     state,
		Action:    action,
		Timestamp: time.Now(),
	})

	fa.pending = &pending{state: state, action: action}
	fa.lastState = state

	if err := fa.machine.RecordInteraction(); err != nil {
		if busy {
			_ = fa.machine.CompleteQuery()
		}
		return nil, err
	}

	if busy {
		if err := fa.machine.CompleteQuery(); err != nil {
			log.Error("failed to complete query transition", "agent", fa.config.ID, "error", err)
		}
	}

	fa.metrics.RecordDecision(explored, time.Since(started))

	return &Response{
		AgentID:   fa.config.ID,
		Action:    action,
		Explored:  explored,
		State:     state,
		Context:   memories,
		Decision:  decision,
		Lifecycle: fa.machine.State(),
	}, nil
}

/*
Feedback closes the Bellman loop for the most recent decision: the reward
total updates the Q-table (bootstrapping against the latest observed
state), the reward lands on the step recorded at decision time, and the
failure streak tracks the reward sign.
*/
func (fa *FeatureAgent) Feedback(reward qlearning.Reward) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.pending == nil {
		return errors.ErrAgentBusy.WithMessagef(
			"agent %s has no decision awaiting feedback", fa.config.ID,
		)
	}

	total := reward.Total()
	fa.qtable.Update(fa.pending.state, fa.pending.action, total, fa.lastState)
	fa.metrics.RecordQUpdate()

	fa.buffer.RewardLastStep(total)

	if total > 0 {
		fa.machine.RecordSuccess()
	} else if total < 0 {
		fa.machine.RecordFailure()
	}

	fa.pending = nil
	return nil
}

// CompleteEpisode finalizes the active trajectory, returning the stored (or
// merged) trajectory, nil when none was active.
func (fa *FeatureAgent) CompleteEpisode() *replay.Trajectory {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.buffer.CompleteTrajectory()
}

// RecordInteraction counts a warm-up interaction outside a full query, e.g.
// passive observations during cold start.
func (fa *FeatureAgent) RecordInteraction() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.machine.RecordInteraction()
}

// SetHealth reports a new health score, applying the degrade and recover
// guards.
func (fa *FeatureAgent) SetHealth(value float64) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	score, err := lifecycle.NewHealthScore(value)
	if err != nil {
		return err
	}

	return fa.machine.UpdateHealth(score)
}

// Merge reconciles a peer's exported Q-table entries into this agent's
// table, returning how many entries changed.
func (fa *FeatureAgent) Merge(peer map[string]qlearning.Entry) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	merged := fa.qtable.Merge(peer)
	fa.metrics.RecordMerge(merged)

	log.Info("federated merge applied", "agent", fa.config.ID, "merged", merged)
	return merged
}

// ExportQTable snapshots the Q-table entries for federation transport.
func (fa *FeatureAgent) ExportQTable() map[string]qlearning.Entry {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.qtable.Export()
}

// Checkpoint captures the agent's learned state for persistence.
func (fa *FeatureAgent) Checkpoint() Checkpoint {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return Checkpoint{
		AgentID:      fa.config.ID,
		Feature:      fa.config.Feature,
		CreatedAt:    time.Now(),
		QTable:       fa.qtable.Snapshot(),
		Trajectories: fa.buffer.Export(),
	}
}

// Restore replaces the learned state from a checkpoint.
func (fa *FeatureAgent) Restore(checkpoint Checkpoint) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fa.qtable.Restore(checkpoint.QTable)
	fa.buffer.Import(checkpoint.Trajectories)

	log.Info("checkpoint restored",
		"agent", fa.config.ID,
		"entries", len(checkpoint.QTable.Entries),
		"trajectories", len(checkpoint.Trajectories),
	)
}

// Shutdown moves the agent to the terminal Offline state.
func (fa *FeatureAgent) Shutdown() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.machine.Shutdown()
}

// Stats aggregates the learning state across the agent's cores.
func (fa *FeatureAgent) Stats() map[string]any {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return map[string]any{
		"agent_id":     fa.config.ID,
		"feature":      fa.config.Feature,
		"state":        string(fa.machine.State()),
		"health":       fa.machine.Health().Value(),
		"interactions": fa.machine.InteractionCount(),
		"memories":     fa.memory.Len(),
		"qtable":       fa.qtable.Stats(),
		"trajectories": fa.buffer.Stats(),
		"decisions":    fa.metrics.GetMetrics(),
	}
}

// Checkpoint is the persisted form of an agent's learned state.
type Checkpoint struct {
	AgentID      string               `json:"agentId"`
	Feature      string               `json:"feature"`
	CreatedAt    time.Time            `json:"createdAt"`
	QTable       qlearning.Snapshot   `json:"qTable"`
	Trajectories []*replay.Trajectory `json:"trajectories"`
}

// contextHash derives the state's context component from the retrieved
// memories, so decisions key on what the agent knew at the time.
func contextHash(memories []memory.Memory) string {
	if len(memories) == 0 {
		return "none"
	}

	h := fnv.New32a()
	for _, m := range memories {
		h.Write([]byte(m.ID))
	}

	return fmt.Sprintf("%08x", h.Sum32())
}
