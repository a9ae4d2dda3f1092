package qlearning

import (
	"math"
	"math/rand"
	"time"
)

// Config holds the Q-learning hyperparameters.
type Config struct {
	// Alpha is the learning rate.
	Alpha float64
	// Gamma is the discount factor.
	Gamma float64
	// Epsilon is the starting exploration rate.
	Epsilon float64
	// EpsilonDecay is applied on every update.
	EpsilonDecay float64
	// EpsilonMin is the exploration floor.
	EpsilonMin float64
}

// DefaultConfig returns the tuned engine defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.1,
		Gamma:        0.95,
		Epsilon:      0.9,
		EpsilonDecay: 0.995,
		EpsilonMin:   0.1,
	}
}

// Outcomes tracks the observed results behind a Q-value.
type Outcomes struct {
	Successes   uint32  `json:"successes"`
	Failures    uint32  `json:"failures"`
	TotalReward float64 `json:"totalReward"`
}

// Entry is one state-action value. Entries are created lazily on first
// update so memory stays proportional to observed pairs, not the full
// cross-product.
type Entry struct {
	QValue      float64   `json:"qValue"`
	Visits      uint32    `json:"visits"`
	Confidence  float64   `json:"confidence"`
	Outcomes    Outcomes  `json:"outcomes"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Stats is a point-in-time snapshot of table health.
type Stats struct {
	Entries      int     `json:"entries"`
	TotalUpdates uint64  `json:"totalUpdates"`
	Epsilon      float64 `json:"epsilon"`
	MinQ         float64 `json:"minQ"`
	MaxQ         float64 `json:"maxQ"`
	MeanQ        float64 `json:"meanQ"`
}

/*
QTable stores state-action value estimates and drives epsilon-greedy action
selection. It is not internally synchronized: one agent owns one table, and
federated merges must be serialized by the caller against local updates.
*/
type QTable struct {
	config  Config
	entries map[string]*Entry
	// byState indexes the actions observed per state key, so max-Q over
	// a state never scans the whole table.
	byState map[string]map[Action]bool

	epsilon      float64
	totalUpdates uint64
	rng          *rand.Rand
}

// New creates a Q-table. The random source drives exploration and is
// injected so action selection is reproducible in tests; nil falls back to
// a fixed seed.
func New(config Config, rng *rand.Rand) *QTable {
	if config.Alpha == 0 && config.Gamma == 0 {
		config = DefaultConfig()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &QTable{
		config:  config,
		entries: make(map[string]*Entry),
		byState: make(map[string]map[Action]bool),
		epsilon: config.Epsilon,
		rng:     rng,
	}
}

// Lookup returns the stored Q-value, or 0 when the pair was never updated.
// It never errors.
func (qt *QTable) Lookup(state State, action Action) float64 {
	if entry, ok := qt.entries[entryKey(state, action)]; ok {
		return entry.QValue
	}
	return 0
}

// Entry returns a copy of the stored entry for inspection.
func (qt *QTable) Entry(state State, action Action) (Entry, bool) {
	if entry, ok := qt.entries[entryKey(state, action)]; ok {
		return *entry, true
	}
	return Entry{}, false
}

// Update applies the Bellman update
//
//	Q(s,a) <- Q(s,a) + alpha*(r + gamma*max_a' Q(s',a') - Q(s,a))
//
// where the max runs over actions previously observed for nextState (0 when
// none). It also maintains visits, confidence, outcome counters and decays
// the shared exploration rate.
func (qt *QTable) Update(state State, action Action, reward float64, nextState State) {
	key := entryKey(state, action)

	entry, ok := qt.entries[key]
	if !ok {
		entry = &Entry{}
		qt.entries[key] = entry
		qt.observe(state.Key(), action)
	}

	target := reward + qt.config.Gamma*qt.maxQ(nextState)
	entry.QValue += qt.config.Alpha * (target - entry.QValue)

	entry.Visits++
	entry.Confidence = 1 - 1/float64(entry.Visits+1)
	entry.LastUpdated = time.Now()

	entry.Outcomes.TotalReward += reward
	if reward > 0 {
		entry.Outcomes.Successes++
	} else if reward < 0 {
		entry.Outcomes.Failures++
	}

	qt.totalUpdates++
	qt.decayEpsilon()
}

// SelectAction picks an action with the epsilon-greedy policy. The second
// return reports whether the pick was exploratory.
func (qt *QTable) SelectAction(state State) (Action, bool) {
	if qt.rng.Float64() < qt.epsilon {
		actions := Actions()
		return actions[qt.rng.Intn(len(actions))], true
	}
	return qt.BestAction(state), false
}

// BestAction returns the argmax over actions with recorded entries for the
// state, or DirectAnswer when no entry exists.
func (qt *QTable) BestAction(state State) Action {
	observed := qt.byState[state.Key()]
	if len(observed) == 0 {
		return DirectAnswer
	}

	best := DirectAnswer
	bestQ := math.Inf(-1)

	// Iterate the fixed action order so ties resolve deterministically.
	for _, action := range Actions() {
		if !observed[action] {
			continue
		}
		if q := qt.Lookup(state, action); q > bestQ {
			best = action
			bestQ = q
		}
	}

	return best
}

// Epsilon returns the current exploration rate.
func (qt *QTable) Epsilon() float64 {
	return qt.epsilon
}

// Len returns the number of stored entries.
func (qt *QTable) Len() int {
	return len(qt.entries)
}

/*
Merge reconciles entries learned by a peer agent. Absent keys are adopted
outright. For keys present on both sides a visit-weighted average is applied
only when the values disagree by more than 0.1, taking the larger visit
count and summing outcome counters. Entries within 0.1 are left entirely
untouched, so repeated rounds against an unchanged peer do not inflate the
counters. Merge conflicts never error; resolution is deterministic.
*/
func (qt *QTable) Merge(peer map[string]Entry) int {
	merged := 0

	for key, peerEntry := range peer {
		local, ok := qt.entries[key]
		if !ok {
			adopted := peerEntry
			qt.entries[key] = &adopted
			if stateKey, action, ok := splitEntryKey(key); ok {
				qt.observe(stateKey, action)
			}
			merged++
			continue
		}

		if math.Abs(local.QValue-peerEntry.QValue) <= 0.1 {
			continue
		}

		totalVisits := float64(local.Visits) + float64(peerEntry.Visits)
		if totalVisits > 0 {
			local.QValue = (local.QValue*float64(local.Visits) +
				peerEntry.QValue*float64(peerEntry.Visits)) / totalVisits
		}

		if peerEntry.Visits > local.Visits {
			local.Visits = peerEntry.Visits
		}
		local.Confidence = 1 - 1/float64(local.Visits+1)
		local.Outcomes.Successes += peerEntry.Outcomes.Successes
		local.Outcomes.Failures += peerEntry.Outcomes.Failures
		local.Outcomes.TotalReward += peerEntry.Outcomes.TotalReward
		merged++
	}

	return merged
}

// Export returns the persistence mapping from state-action key to entry.
// Re-importing the export reproduces identical Lookup results.
func (qt *QTable) Export() map[string]Entry {
	out := make(map[string]Entry, len(qt.entries))
	for key, entry := range qt.entries {
		out[key] = *entry
	}
	return out
}

// Import replaces the table contents with an exported mapping.
func (qt *QTable) Import(entries map[string]Entry) {
	qt.entries = make(map[string]*Entry, len(entries))
	qt.byState = make(map[string]map[Action]bool)

	for key, entry := range entries {
		stored := entry
		qt.entries[key] = &stored
		if stateKey, action, ok := splitEntryKey(key); ok {
			qt.observe(stateKey, action)
		}
	}
}

// Stats summarizes the table.
func (qt *QTable) Stats() Stats {
	stats := Stats{
		Entries:      len(qt.entries),
		TotalUpdates: qt.totalUpdates,
		Epsilon:      qt.epsilon,
	}

	if len(qt.entries) == 0 {
		return stats
	}

	stats.MinQ = math.Inf(1)
	stats.MaxQ = math.Inf(-1)
	var sum float64

	for _, entry := range qt.entries {
		stats.MinQ = math.Min(stats.MinQ, entry.QValue)
		stats.MaxQ = math.Max(stats.MaxQ, entry.QValue)
		sum += entry.QValue
	}

	stats.MeanQ = sum / float64(len(qt.entries))
	return stats
}

// Reset clears all learning state and restores the starting epsilon.
func (qt *QTable) Reset() {
	qt.entries = make(map[string]*Entry)
	qt.byState = make(map[string]map[Action]bool)
	qt.epsilon = qt.config.Epsilon
	qt.totalUpdates = 0
}

func (qt *QTable) maxQ(state State) float64 {
	observed := qt.byState[state.Key()]
	if len(observed) == 0 {
		return 0
	}

	best := math.Inf(-1)
	for action := range observed {
		if q := qt.Lookup(state, action); q > best {
			best = q
		}
	}
	return best
}

func (qt *QTable) observe(stateKey string, action Action) {
	actions, ok := qt.byState[stateKey]
	if !ok {
		actions = make(map[Action]bool)
		qt.byState[stateKey] = actions
	}
	actions[action] = true
}

func (qt *QTable) decayEpsilon() {
	qt.epsilon *= qt.config.EpsilonDecay
	if qt.epsilon < qt.config.EpsilonMin {
		qt.epsilon = qt.config.EpsilonMin
	}
}
