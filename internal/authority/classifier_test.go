package authority

import (
	"testing"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	policy := domain.PolicyTable{
		"movement":      domain.AuthorityAutomatic,
		"weapon_attack": domain.AuthorityReviewable,
		"narrative":     domain.AuthorityManualOnly,
	}
	overrides := domain.Overrides{
		"weapon_attack": domain.AuthorityAutomatic,
		"bogus_level":   domain.AuthorityLevel("loud"),
	}

	tests := []struct {
		name       string
		actionType string
		overrides  domain.Overrides
		want       domain.AuthorityLevel
	}{
		{"policy hit", "movement", nil, domain.AuthorityAutomatic},
		{"override wins over policy", "weapon_attack", overrides, domain.AuthorityAutomatic},
		{"policy hit without override", "weapon_attack", nil, domain.AuthorityReviewable},
		{"absent everywhere defaults to manual", "teleport", overrides, domain.AuthorityManualOnly},
		{"invalid override falls through", "bogus_level", overrides, domain.AuthorityManualOnly},
		{"nil tables", "anything", nil, domain.AuthorityManualOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := policy
			if tt.name == "nil tables" {
				table = nil
			}
			got := Classify(tt.actionType, tt.overrides, table)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Stable(t *testing.T) {
	policy := domain.PolicyTable{"movement": domain.AuthorityAutomatic}

	first := Classify("movement", nil, policy)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify("movement", nil, policy))
	}
}
