package lifecycle

import (
	"github.com/cohesivestack/valgo"
	"github.com/ranswarm/ranswarm/pkg/errors"
)

/*
HealthScore is a bounded health value in [0, 1]. Construction validates the
bound and errors instead of clamping, so an out-of-range score from a
collaborator surfaces as a bug rather than silently saturating the guards
built on it.
*/
type HealthScore struct {
	value float64
}

// NewHealthScore validates and wraps a health value.
func NewHealthScore(value float64) (HealthScore, error) {
	val := valgo.Is(valgo.Float64(value, "health").Between(0, 1))
	if !val.Valid() {
		return HealthScore{}, errors.ErrBoundedValue.WithMessagef(
			"health score %v outside [0, 1]", value,
		)
	}

	return HealthScore{value: value}, nil
}

// MustHealthScore is NewHealthScore for compile-time constants.
func MustHealthScore(value float64) HealthScore {
	score, err := NewHealthScore(value)
	if err != nil {
		panic(err)
	}
	return score
}

// Value returns the underlying score.
func (h HealthScore) Value() float64 {
	return h.value
}
