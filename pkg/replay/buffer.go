package replay

import (
	"math/rand"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Config holds the buffer tuning knobs.
type Config struct {
	// Capacity bounds the number of stored trajectories.
	Capacity int
	// SimilarityThreshold is the matching-prefix fraction above which two
	// trajectories are merged instead of stored separately.
	SimilarityThreshold float64
	// MaxStepDelta is the largest step-count difference two trajectories
	// may have and still be considered duplicates.
	MaxStepDelta int
	// BatchSize is the default sample size.
	BatchSize int
}

// DefaultConfig returns the tuned engine defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:            1000,
		SimilarityThreshold: 0.9,
		MaxStepDelta:        2,
		BatchSize:           32,
	}
}

// SampleOptions filters and shapes a Sample call. Zero values mean "no
// filter" and the configured default batch size.
type SampleOptions struct {
	BatchSize   int
	Prioritized bool
	// MinReward, when set, drops trajectories below the threshold.
	MinReward *float64
	// MaxAge, when positive, drops trajectories completed longer ago.
	MaxAge time.Duration
}

// Stats summarizes the stored trajectories.
type Stats struct {
	Count         int     `json:"count"`
	TotalSteps    int     `json:"totalSteps"`
	AverageReward float64 `json:"averageReward"`
	AverageLength float64 `json:"averageLength"`
	// SuccessRate is the fraction of trajectories with positive
	// cumulative reward.
	SuccessRate float64 `json:"successRate"`
}

/*
Buffer is a fixed-capacity experience store. Trajectories live in an arena
of slots; insertion order and a reward-sorted index are kept as parallel
slot-index slices, updated incrementally on insert and evict so sampling
never re-sorts the whole buffer. Like the rest of the engine core it is
confined to a single owner and not internally synchronized.
*/
type Buffer struct {
	config Config

	slots []*Trajectory
	// order holds occupied slot indices oldest-first; eviction pops the
	// head.
	order []int
	// byReward holds occupied slot indices sorted by cumulative reward
	// descending.
	byReward []int
	free     []int

	active *Trajectory
	rng    *rand.Rand
}

// NewBuffer creates a buffer. The random source drives sampling and is
// injected for reproducibility; nil falls back to a fixed seed.
func NewBuffer(config Config, rng *rand.Rand) *Buffer {
	if config.Capacity <= 0 {
		config = DefaultConfig()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	free := make([]int, config.Capacity)
	for i := range free {
		free[i] = i
	}

	return &Buffer{
		config: config,
		slots:  make([]*Trajectory, config.Capacity),
		free:   free,
		rng:    rng,
	}
}

// StartTrajectory opens a new active trajectory, abandoning any uncompleted
// one, and returns its id.
func (b *Buffer) StartTrajectory() string {
	if b.active != nil {
		log.Debug("abandoning uncompleted trajectory", "id", b.active.ID, "steps", len(b.active.Steps))
	}

	b.active = &Trajectory{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}

	return b.active.ID
}

// Record appends a step to the active trajectory, starting one if none is
// active.
func (b *Buffer) Record(step Step) {
	if b.active == nil {
		b.StartTrajectory()
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}

	b.active.Steps = append(b.active.Steps, step)
	b.active.CumulativeReward += step.Reward
}

// RewardLastStep sets the reward of the most recently recorded step on the
// active trajectory, for decisions whose feedback arrives later. Returns
// false when no step is pending.
func (b *Buffer) RewardLastStep(reward float64) bool {
	if b.active == nil || len(b.active.Steps) == 0 {
		return false
	}

	step := &b.active.Steps[len(b.active.Steps)-1]
	b.active.CumulativeReward += reward - step.Reward
	step.Reward = reward
	return true
}

/*
CompleteTrajectory finalizes the active trajectory. When a stored
trajectory is a near-duplicate, the two are merged by averaging cumulative
reward and the earlier entry is kept; otherwise the trajectory enters the
ring, evicting the oldest entry at capacity. Returns the stored (or merged
into) trajectory, or nil when nothing was active.
*/
func (b *Buffer) CompleteTrajectory() *Trajectory {
	if b.active == nil {
		return nil
	}

	trajectory := b.active
	b.active = nil
	trajectory.Completed = true
	trajectory.EndTime = time.Now()

	for _, slot := range b.order {
		existing := b.slots[slot]
		if !similar(existing, trajectory, b.config.MaxStepDelta, b.config.SimilarityThreshold) {
			continue
		}

		existing.CumulativeReward = (existing.CumulativeReward + trajectory.CumulativeReward) / 2
		b.reindex(slot)

		log.Debug("merged near-duplicate trajectory",
			"kept", existing.ID, "dropped", trajectory.ID,
			"reward", existing.CumulativeReward,
		)

		return existing
	}

	b.insert(trajectory)
	return trajectory
}

// Sample returns a batch of stored trajectories per the options: filters
// first, then either uniform or reward-prioritized selection, both without
// replacement.
func (b *Buffer) Sample(opts SampleOptions) []*Trajectory {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = b.config.BatchSize
	}

	// byReward already holds the reward-descending order the prioritized
	// weights are defined over.
	eligible := make([]int, 0, len(b.byReward))
	now := time.Now()

	for _, slot := range b.byReward {
		t := b.slots[slot]
		if opts.MinReward != nil && t.CumulativeReward < *opts.MinReward {
			continue
		}
		if opts.MaxAge > 0 && now.Sub(t.EndTime) > opts.MaxAge {
			continue
		}
		eligible = append(eligible, slot)
	}

	if len(eligible) <= batch {
		out := make([]*Trajectory, len(eligible))
		for i, slot := range eligible {
			out[i] = b.slots[slot]
		}
		return out
	}

	if !opts.Prioritized {
		out := make([]*Trajectory, 0, batch)
		for _, i := range b.rng.Perm(len(eligible))[:batch] {
			out = append(out, b.slots[eligible[i]])
		}
		return out
	}

	return b.samplePrioritized(eligible, batch)
}

// samplePrioritized draws without replacement by weight
// max(reward+1, 0.1)/(rank+1) over the reward-sorted eligible set. The
// roulette loop is capped at 4x the batch size; remaining slots are filled
// with the best unselected trajectories so rounding in the cumulative
// probabilities can never stall the draw.
func (b *Buffer) samplePrioritized(eligible []int, batch int) []*Trajectory {
	priorities := make([]float64, len(eligible))
	total := 0.0

	for rank, slot := range eligible {
		p := b.slots[slot].CumulativeReward + 1
		if p < 0.1 {
			p = 0.1
		}
		priorities[rank] = p / float64(rank+1)
		total += priorities[rank]
	}

	selected := make([]bool, len(eligible))
	out := make([]*Trajectory, 0, batch)

	for attempts := 0; attempts < 4*batch && len(out) < batch; attempts++ {
		target := b.rng.Float64() * total
		cumulative := 0.0

		for rank, p := range priorities {
			cumulative += p
			if target > cumulative {
				continue
			}
			if !selected[rank] {
				selected[rank] = true
				out = append(out, b.slots[eligible[rank]])
			}
			break
		}
	}

	for rank := 0; rank < len(eligible) && len(out) < batch; rank++ {
		if !selected[rank] {
			selected[rank] = true
			out = append(out, b.slots[eligible[rank]])
		}
	}

	return out
}

// SampleSteps flattens a prioritized trajectory sample into individual
// steps, truncated to batchSize.
func (b *Buffer) SampleSteps(batchSize int) []Step {
	if batchSize <= 0 {
		batchSize = b.config.BatchSize
	}

	steps := make([]Step, 0, batchSize)
	for _, t := range b.Sample(SampleOptions{BatchSize: batchSize, Prioritized: true}) {
		for _, step := range t.Steps {
			if len(steps) == batchSize {
				return steps
			}
			steps = append(steps, step)
		}
	}

	return steps
}

// TopTrajectories returns the k highest-reward trajectories, best first.
func (b *Buffer) TopTrajectories(k int) []*Trajectory {
	if k > len(b.byReward) {
		k = len(b.byReward)
	}

	out := make([]*Trajectory, k)
	for i := 0; i < k; i++ {
		out[i] = b.slots[b.byReward[i]]
	}
	return out
}

// Export returns the stored trajectories oldest-first for checkpointing.
func (b *Buffer) Export() []*Trajectory {
	out := make([]*Trajectory, len(b.order))
	for i, slot := range b.order {
		out[i] = b.slots[slot]
	}
	return out
}

// Import inserts previously exported trajectories, oldest first. Exports
// are already deduplicated, so entries go straight into the ring subject
// only to the capacity bound.
func (b *Buffer) Import(trajectories []*Trajectory) {
	for _, t := range trajectories {
		if t == nil || !t.Completed {
			continue
		}
		b.insert(t)
	}
}

// Len returns the number of stored trajectories.
func (b *Buffer) Len() int {
	return len(b.order)
}

// Active returns the id of the trajectory currently recording, or "".
func (b *Buffer) Active() string {
	if b.active == nil {
		return ""
	}
	return b.active.ID
}

// Stats summarizes the buffer contents.
func (b *Buffer) Stats() Stats {
	stats := Stats{Count: len(b.order)}
	if stats.Count == 0 {
		return stats
	}

	var rewardSum float64
	successes := 0

	for _, slot := range b.order {
		t := b.slots[slot]
		stats.TotalSteps += len(t.Steps)
		rewardSum += t.CumulativeReward
		if t.CumulativeReward > 0 {
			successes++
		}
	}

	stats.AverageReward = rewardSum / float64(stats.Count)
	stats.AverageLength = float64(stats.TotalSteps) / float64(stats.Count)
	stats.SuccessRate = float64(successes) / float64(stats.Count)
	return stats
}

func (b *Buffer) insert(t *Trajectory) {
	var slot int

	if len(b.free) > 0 {
		slot = b.free[len(b.free)-1]
		b.free = b.free[:len(b.free)-1]
	} else {
		slot = b.order[0]
		b.order = b.order[1:]
		b.removeFromIndex(slot)
		log.Debug("evicting oldest trajectory", "id", b.slots[slot].ID)
	}

	b.slots[slot] = t
	b.order = append(b.order, slot)
	b.insertIntoIndex(slot)
}

// insertIntoIndex places a slot into byReward, keeping it sorted by
// cumulative reward descending.
func (b *Buffer) insertIntoIndex(slot int) {
	reward := b.slots[slot].CumulativeReward
	pos := sort.Search(len(b.byReward), func(i int) bool {
		return b.slots[b.byReward[i]].CumulativeReward < reward
	})

	b.byReward = append(b.byReward, 0)
	copy(b.byReward[pos+1:], b.byReward[pos:])
	b.byReward[pos] = slot
}

func (b *Buffer) removeFromIndex(slot int) {
	for i, s := range b.byReward {
		if s == slot {
			b.byReward = append(b.byReward[:i], b.byReward[i+1:]...)
			return
		}
	}
}

// reindex repositions a slot after its reward changed in a dedup merge.
func (b *Buffer) reindex(slot int) {
	b.removeFromIndex(slot)
	b.insertIntoIndex(slot)
}
