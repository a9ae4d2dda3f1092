package metrics

import (
	"sync"
	"time"
)

// DecisionMetrics tracks performance counters for the decision and learning
// loop of a single agent.
type DecisionMetrics struct {
	mu sync.RWMutex

	// Decision metrics
	TotalDecisions int64
	Explorations   int64
	DecisionTime   time.Duration

	// Learning metrics
	QUpdates        int64
	FederatedMerges int64
	MergedEntries   int64

	// Memory metrics
	MemoriesStored  int64
	MemoryEvictions int64
	Searches        int64
	SearchTime      time.Duration
}

// NewDecisionMetrics creates a new DecisionMetrics instance
func NewDecisionMetrics() *DecisionMetrics {
	return &DecisionMetrics{}
}

// RecordDecision records one OODA decision and whether it explored.
func (m *DecisionMetrics) RecordDecision(explored bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalDecisions++
	if explored {
		m.Explorations++
	}
	m.DecisionTime += duration
}

// RecordQUpdate records a Q-table update.
func (m *DecisionMetrics) RecordQUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QUpdates++
}

// RecordMerge records a federated merge and how many entries it touched.
func (m *DecisionMetrics) RecordMerge(entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FederatedMerges++
	m.MergedEntries += int64(entries)
}

// RecordStore records a memory store and whether it caused an eviction.
func (m *DecisionMetrics) RecordStore(evicted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MemoriesStored++
	if evicted {
		m.MemoryEvictions++
	}
}

// RecordSearch records a vector search.
func (m *DecisionMetrics) RecordSearch(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Searches++
	m.SearchTime += duration
}

// GetMetrics returns a snapshot of the current metrics
func (m *DecisionMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := map[string]any{
		"total_decisions":  m.TotalDecisions,
		"explorations":     m.Explorations,
		"q_updates":        m.QUpdates,
		"federated_merges": m.FederatedMerges,
		"merged_entries":   m.MergedEntries,
		"memories_stored":  m.MemoriesStored,
		"memory_evictions": m.MemoryEvictions,
		"searches":         m.Searches,
	}

	if m.TotalDecisions > 0 {
		snapshot["avg_decision_time"] = m.DecisionTime.Seconds() / float64(m.TotalDecisions)
		snapshot["exploration_rate"] = float64(m.Explorations) / float64(m.TotalDecisions)
	}
	if m.Searches > 0 {
		snapshot["avg_search_time"] = m.SearchTime.Seconds() / float64(m.Searches)
	}

	return snapshot
}
