// Package authority decides how much arbiter involvement an action type
// requires. Classification is the routing ground truth for the executor: it
// is pure, deterministic and never fails.
package authority

import "github.com/aretw0/arbiter/pkg/domain"

// Classify resolves the authority level for an action type.
//
// Lookup order: session override, then global policy, then
// AuthorityManualOnly. Missing tables behave like empty ones, so an action
// type unknown everywhere always requires explicit arbiter judgment.
func Classify(actionType string, overrides domain.Overrides, policy domain.PolicyTable) domain.AuthorityLevel {
	if level, ok := overrides[actionType]; ok && level.Valid() {
		return level
	}
	if level, ok := policy[actionType]; ok && level.Valid() {
		return level
	}
	return domain.AuthorityManualOnly
}
