package qlearning

import "math"

/*
Reward decomposes the feedback signal into its components. The scalar fed
into the Bellman update is always Total(); the components exist so
collaborators can attribute why an interaction scored the way it did.
*/
type Reward struct {
	// UserRating is explicit user feedback, clamped to [-1, +1].
	UserRating float64 `json:"userRating"`
	// ResolutionSuccess is the bonus for a successful resolution (+0.5).
	ResolutionSuccess float64 `json:"resolutionSuccess"`
	// LatencyPenalty is a small negative value for slow responses.
	LatencyPenalty float64 `json:"latencyPenalty"`
	// ConsultationCost is a small negative value for peer consultation.
	ConsultationCost float64 `json:"consultationCost"`
	// NoveltyBonus rewards answers grounded in newly stored knowledge.
	NoveltyBonus float64 `json:"noveltyBonus"`
}

// Total reduces the reward to the scalar used by the Q-update.
func (r Reward) Total() float64 {
	return r.UserRating + r.ResolutionSuccess + r.LatencyPenalty + r.ConsultationCost + r.NoveltyBonus
}

// RewardFromRating builds a reward carrying only a clamped user rating.
func RewardFromRating(rating float64) Reward {
	return Reward{UserRating: clampRating(rating)}
}

// SuccessReward is the flat bonus for a successful resolution.
func SuccessReward() Reward {
	return Reward{ResolutionSuccess: 0.5}
}

// FailureReward is the flat penalty for a failed resolution.
func FailureReward() Reward {
	return Reward{UserRating: -0.5}
}

// WithLatency returns a copy with a latency penalty. The penalty is always
// applied as a negative value.
func (r Reward) WithLatency(penalty float64) Reward {
	r.LatencyPenalty = -math.Abs(penalty)
	return r
}

// WithConsultationCost returns a copy with a peer-consultation cost. The
// cost is always applied as a negative value.
func (r Reward) WithConsultationCost(cost float64) Reward {
	r.ConsultationCost = -math.Abs(cost)
	return r
}

// WithNovelty returns a copy with a novelty bonus.
func (r Reward) WithNovelty(bonus float64) Reward {
	r.NoveltyBonus = math.Abs(bonus)
	return r
}

func clampRating(rating float64) float64 {
	if rating > 1 {
		return 1
	}
	if rating < -1 {
		return -1
	}
	return rating
}
