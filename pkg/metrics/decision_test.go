package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	m := NewDecisionMetrics()

	m.RecordDecision(true, 10*time.Millisecond)
	m.RecordDecision(false, 30*time.Millisecond)

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(2), snapshot["total_decisions"])
	assert.Equal(t, int64(1), snapshot["explorations"])
	assert.InDelta(t, 0.5, snapshot["exploration_rate"], 0.001)
	assert.InDelta(t, 0.02, snapshot["avg_decision_time"], 0.001)
}

func TestRecordStoreAndSearch(t *testing.T) {
	m := NewDecisionMetrics()

	m.RecordStore(false)
	m.RecordStore(true)
	m.RecordSearch(5 * time.Millisecond)

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(2), snapshot["memories_stored"])
	assert.Equal(t, int64(1), snapshot["memory_evictions"])
	assert.Equal(t, int64(1), snapshot["searches"])
}

func TestRecordMerge(t *testing.T) {
	m := NewDecisionMetrics()

	m.RecordMerge(12)
	m.RecordMerge(3)
	m.RecordQUpdate()

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(2), snapshot["federated_merges"])
	assert.Equal(t, int64(15), snapshot["merged_entries"])
	assert.Equal(t, int64(1), snapshot["q_updates"])
}
