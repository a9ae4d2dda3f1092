// Package replay implements the prioritized experience-replay buffer:
// a fixed-capacity ring of completed trajectories with near-duplicate
// merging and reward-weighted sampling.
package replay

import (
	"time"

	"github.com/ranswarm/ranswarm/pkg/qlearning"
)

// Step is one state-action-reward observation inside a trajectory.
type Step struct {
	State     qlearning.State  `json:"state"`
	Action    qlearning.Action `json:"action"`
	Reward    float64          `json:"reward"`
	Timestamp time.Time        `json:"timestamp"`
}

/*
Trajectory is one episode of experience. CumulativeReward always equals the
sum of the step rewards while the trajectory is being recorded; once
Completed the trajectory is immutable except for the dedup reward-averaging
applied by the buffer on merge.
*/
type Trajectory struct {
	ID               string    `json:"id"`
	Steps            []Step    `json:"steps"`
	CumulativeReward float64   `json:"cumulativeReward"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime,omitzero"`
	Completed        bool      `json:"completed"`
}

// Len returns the number of recorded steps.
func (t *Trajectory) Len() int {
	return len(t.Steps)
}

// similar reports whether two trajectories are near-duplicates: step counts
// within maxStepDelta of each other and at least threshold of the
// overlapping prefix matching on (action, queryType, complexity).
func similar(a, b *Trajectory, maxStepDelta int, threshold float64) bool {
	diff := len(a.Steps) - len(b.Steps)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxStepDelta {
		return false
	}

	overlap := len(a.Steps)
	if len(b.Steps) < overlap {
		overlap = len(b.Steps)
	}
	if overlap == 0 {
		// Two empty (or one-empty within the delta) trajectories carry
		// no distinguishing steps; treat them as duplicates.
		return true
	}

	matching := 0
	for i := 0; i < overlap; i++ {
		sa, sb := a.Steps[i], b.Steps[i]
		if sa.Action == sb.Action &&
			sa.State.QueryType == sb.State.QueryType &&
			sa.State.Complexity == sb.State.Complexity {
			matching++
		}
	}

	return float64(matching)/float64(overlap) >= threshold
}
