package dsl

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/aretw0/arbiter/pkg/domain"
)

var diceExpr = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// ParseDice parses a dice expression like "2d6", "d20", or "1d8+3" into a
// roll spec. The leading count defaults to 1.
func ParseDice(expr string) (domain.RollSpec, error) {
	m := diceExpr.FindStringSubmatch(expr)
	if m == nil {
		return domain.RollSpec{}, fmt.Errorf("invalid dice expression %q", expr)
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	if count < 1 || sides < 2 {
		return domain.RollSpec{}, fmt.Errorf("invalid dice expression %q", expr)
	}

	spec := domain.RollSpec{
		Dice: []domain.DiceSpec{{Count: count, Sides: sides}},
	}
	if m[3] != "" {
		spec.Modifier, _ = strconv.Atoi(m[3])
	}
	return spec, nil
}
