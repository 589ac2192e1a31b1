// Package dice implements seedable dice rolling for auto-roll fallbacks.
package dice

import (
	"errors"
	"math/rand/v2"

	"github.com/aretw0/arbiter/pkg/domain"
)

// ErrMissingDice is returned when a spec contains no dice groups.
var ErrMissingDice = errors.New("roll spec has no dice")

// ErrInvalidDiceSpec is returned for non-positive sides or count.
var ErrInvalidDiceSpec = errors.New("invalid dice spec")

// Roll rolls the spec with an RNG seeded from seed.
//
// Roll is deterministic with respect to seed: the same seed and spec always
// produce the same values, which keeps auto-rolled fallbacks reproducible in
// tests and replays. Dice groups are processed in slice order and the
// modifier is added once to the final total.
func Roll(spec domain.RollSpec, seed int64) (domain.RollResult, error) {
	if len(spec.Dice) == 0 {
		return domain.RollResult{}, ErrMissingDice
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	values := make([]int, 0, len(spec.Dice))
	total := 0

	for _, group := range spec.Dice {
		if group.Sides <= 0 || group.Count <= 0 {
			return domain.RollResult{}, ErrInvalidDiceSpec
		}
		for i := 0; i < group.Count; i++ {
			v := rng.IntN(group.Sides) + 1
			values = append(values, v)
			total += v
		}
	}

	return domain.RollResult{
		Total:      total + spec.Modifier,
		Values:     values,
		AutoRolled: true,
	}, nil
}
