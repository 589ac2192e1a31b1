package domain

// AuthorityLevel classifies how much arbiter involvement an action type
// requires before its outcome may commit.
type AuthorityLevel string

const (
	// AuthorityAutomatic executes unattended; validation only.
	AuthorityAutomatic AuthorityLevel = "automatic"
	// AuthorityReviewable computes a tentative outcome held for the arbiter,
	// auto-accepting after the review window elapses in silence.
	AuthorityReviewable AuthorityLevel = "reviewable"
	// AuthorityManualOnly blocks indefinitely for an explicit ruling. It is
	// the fail-safe default for action types absent from every policy table.
	AuthorityManualOnly AuthorityLevel = "manual_only"
)

// Valid reports whether the level is one of the three known values.
func (l AuthorityLevel) Valid() bool {
	switch l {
	case AuthorityAutomatic, AuthorityReviewable, AuthorityManualOnly:
		return true
	}
	return false
}

// PolicyTable maps action types to authority levels. Lookups that miss both
// the session override map and the table resolve to AuthorityManualOnly.
type PolicyTable map[string]AuthorityLevel

// Overrides is a per-session policy override map consulted before the
// global table.
type Overrides map[string]AuthorityLevel
