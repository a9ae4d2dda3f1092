package replay

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ranswarm/ranswarm/pkg/qlearning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(capacity int) *Buffer {
	config := DefaultConfig()
	config.Capacity = capacity
	return NewBuffer(config, rand.New(rand.NewSource(42)))
}

// completeDistinct records a trajectory whose steps cannot match any other
// index's, then completes it.
func completeDistinct(b *Buffer, index int, reward float64) *Trajectory {
	b.StartTrajectory()
	for s := 0; s < 3; s++ {
		b.Record(Step{
			State: qlearning.State{
				QueryType:  fmt.Sprintf("query-%d", index),
				Complexity: "medium",
			},
			Action: qlearning.DirectAnswer,
			Reward: reward / 3,
		})
	}
	return b.CompleteTrajectory()
}

func TestRecordAutoStartsTrajectory(t *testing.T) {
	b := newTestBuffer(10)
	require.Empty(t, b.Active())

	b.Record(Step{Action: qlearning.DirectAnswer, Reward: 0.5})
	assert.NotEmpty(t, b.Active())

	trajectory := b.CompleteTrajectory()
	require.NotNil(t, trajectory)
	assert.True(t, trajectory.Completed)
	assert.Len(t, trajectory.Steps, 1)
	assert.Empty(t, b.Active())
}

func TestCumulativeRewardIsSumOfSteps(t *testing.T) {
	b := newTestBuffer(10)

	b.StartTrajectory()
	for _, r := range []float64{0.5, -0.2, 1.0} {
		b.Record(Step{Action: qlearning.ContextAnswer, Reward: r})
	}

	trajectory := b.CompleteTrajectory()
	require.NotNil(t, trajectory)
	assert.InDelta(t, 1.3, trajectory.CumulativeReward, 1e-9)
}

func TestRewardLastStepBackfillsDelayedFeedback(t *testing.T) {
	b := newTestBuffer(10)

	// No active trajectory, nothing to reward.
	assert.False(t, b.RewardLastStep(1.0))

	b.Record(Step{Action: qlearning.DirectAnswer})
	b.Record(Step{Action: qlearning.ConsultPeer})
	require.True(t, b.RewardLastStep(0.8))

	trajectory := b.CompleteTrajectory()
	require.NotNil(t, trajectory)
	require.Len(t, trajectory.Steps, 2)
	assert.InDelta(t, 0.0, trajectory.Steps[0].Reward, 1e-9)
	assert.InDelta(t, 0.8, trajectory.Steps[1].Reward, 1e-9)
	assert.InDelta(t, 0.8, trajectory.CumulativeReward, 1e-9)

	// Completion detaches the trajectory from further rewards.
	assert.False(t, b.RewardLastStep(1.0))
}

func TestCompleteWithoutActiveReturnsNil(t *testing.T) {
	b := newTestBuffer(10)
	assert.Nil(t, b.CompleteTrajectory())
}

func TestRingBufferEvictsOldest(t *testing.T) {
	b := newTestBuffer(5)

	oldest := completeDistinct(b, 0, 0.1)
	for i := 1; i <= 5; i++ {
		completeDistinct(b, i, 0.1)
	}

	assert.Equal(t, 5, b.Len())
	for _, stored := range b.Export() {
		assert.NotEqual(t, oldest.ID, stored.ID)
	}
}

func TestDedupMergesAveragingReward(t *testing.T) {
	b := newTestBuffer(10)

	record := func(reward float64) *Trajectory {
		b.StartTrajectory()
		for s := 0; s < 4; s++ {
			b.Record(Step{
				State:  qlearning.State{QueryType: "handover", Complexity: "high"},
				Action: qlearning.ConsultPeer,
				Reward: reward / 4,
			})
		}
		return b.CompleteTrajectory()
	}

	first := record(1.0)
	second := record(0.5)

	// Identical step sequences merge into the earlier entry.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, b.Len())
	assert.InDelta(t, 0.75, first.CumulativeReward, 1e-9)
}

func TestDedupToleratesStepCountDelta(t *testing.T) {
	b := newTestBuffer(10)

	b.StartTrajectory()
	for s := 0; s < 10; s++ {
		b.Record(Step{
			State:  qlearning.State{QueryType: "fault", Complexity: "low"},
			Action: qlearning.DirectAnswer,
			Reward: 0.1,
		})
	}
	first := b.CompleteTrajectory()

	// Two extra steps keeps it inside the duplicate window.
	b.StartTrajectory()
	for s := 0; s < 12; s++ {
		b.Record(Step{
			State:  qlearning.State{QueryType: "fault", Complexity: "low"},
			Action: qlearning.DirectAnswer,
			Reward: 0.1,
		})
	}
	merged := b.CompleteTrajectory()

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, 1, b.Len())
}

func TestDistinctTrajectoriesAreNotMerged(t *testing.T) {
	b := newTestBuffer(10)

	completeDistinct(b, 1, 0.5)
	completeDistinct(b, 2, 0.5)

	assert.Equal(t, 2, b.Len())
}

func TestSampleReturnsAllWhenUnderBatch(t *testing.T) {
	b := newTestBuffer(100)
	for i := 0; i < 5; i++ {
		completeDistinct(b, i, float64(i))
	}

	sampled := b.Sample(SampleOptions{BatchSize: 32})
	assert.Len(t, sampled, 5)
}

func TestSampleWithoutReplacement(t *testing.T) {
	b := newTestBuffer(100)
	for i := 0; i < 50; i++ {
		completeDistinct(b, i, float64(i)/10)
	}

	for _, prioritized := range []bool{false, true} {
		sampled := b.Sample(SampleOptions{BatchSize: 10, Prioritized: prioritized})
		require.Len(t, sampled, 10)

		seen := make(map[string]bool)
		for _, trajectory := range sampled {
			assert.False(t, seen[trajectory.ID], "trajectory sampled twice")
			seen[trajectory.ID] = true
		}
	}
}

func TestSampleMinRewardFilter(t *testing.T) {
	b := newTestBuffer(100)
	completeDistinct(b, 1, -1.0)
	completeDistinct(b, 2, 0.5)
	completeDistinct(b, 3, 1.5)

	min := 0.0
	sampled := b.Sample(SampleOptions{BatchSize: 10, MinReward: &min})

	require.Len(t, sampled, 2)
	for _, trajectory := range sampled {
		assert.GreaterOrEqual(t, trajectory.CumulativeReward, 0.0)
	}
}

func TestPrioritizedSampleFavorsHighReward(t *testing.T) {
	b := newTestBuffer(200)
	for i := 0; i < 100; i++ {
		reward := -0.5
		if i < 5 {
			reward = 5.0
		}
		completeDistinct(b, i, reward)
	}

	hits := 0
	for trial := 0; trial < 20; trial++ {
		for _, trajectory := range b.Sample(SampleOptions{BatchSize: 5, Prioritized: true}) {
			if trajectory.CumulativeReward > 1 {
				hits++
			}
		}
	}

	// High-reward trajectories sit at the top ranks, so they must
	// dominate the draws.
	assert.Greater(t, hits, 50)
}

func TestSampleStepsTruncates(t *testing.T) {
	b := newTestBuffer(100)
	for i := 0; i < 10; i++ {
		completeDistinct(b, i, 0.3) // 3 steps each
	}

	steps := b.SampleSteps(7)
	assert.Len(t, steps, 7)
}

func TestTopTrajectoriesOrdering(t *testing.T) {
	b := newTestBuffer(100)
	completeDistinct(b, 1, 0.2)
	completeDistinct(b, 2, 1.8)
	completeDistinct(b, 3, -0.4)
	completeDistinct(b, 4, 0.9)

	top := b.TopTrajectories(3)
	require.Len(t, top, 3)
	assert.InDelta(t, 1.8, top[0].CumulativeReward, 1e-9)
	assert.InDelta(t, 0.9, top[1].CumulativeReward, 1e-9)
	assert.InDelta(t, 0.2, top[2].CumulativeReward, 1e-9)
}

func TestStats(t *testing.T) {
	b := newTestBuffer(100)
	completeDistinct(b, 1, 1.0)
	completeDistinct(b, 2, -1.0)

	stats := b.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 6, stats.TotalSteps)
	assert.InDelta(t, 0.0, stats.AverageReward, 1e-9)
	assert.InDelta(t, 3.0, stats.AverageLength, 1e-9)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}

func TestExportImportRoundTrip(t *testing.T) {
	b := newTestBuffer(100)
	for i := 0; i < 8; i++ {
		completeDistinct(b, i, float64(i))
	}

	restored := newTestBuffer(100)
	restored.Import(b.Export())

	assert.Equal(t, b.Len(), restored.Len())
	assert.Equal(t, b.Stats(), restored.Stats())
}
