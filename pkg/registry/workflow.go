package registry

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Workflow is a named, ordered phase sequence for one action type. Phases
// execute strictly in sequence; fan-out happens only inside a phase.
type Workflow struct {
	ActionType string
	Version    int
	Phases     []Phase
}

// Phase is one step of a workflow. At most one of Rolls/Apply drives the
// phase forward, and they may be combined: when both are set, Rolls runs
// first and Apply sees its results.
//
// Skip is an optional data-driven predicate; a skipped phase contributes
// neither rolls nor changes.
type Phase struct {
	Name  string
	Skip  func(run *Run) bool
	Rolls func(run *Run) []domain.RollAsk
	Apply func(run *Run) error
}

// Validate checks the descriptor at registration time.
func (w Workflow) Validate() error {
	if w.ActionType == "" {
		return errors.New("action type is required")
	}
	if w.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", w.Version)
	}
	if len(w.Phases) == 0 {
		return errors.New("at least one phase is required")
	}

	seen := make(map[string]bool, len(w.Phases))
	for i, p := range w.Phases {
		if p.Name == "" {
			return fmt.Errorf("phase %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("phase %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if p.Rolls == nil && p.Apply == nil {
			return fmt.Errorf("phase %q: needs rolls or apply", p.Name)
		}
	}
	return nil
}

// Rejection is returned by a phase Apply to reject the action outright: the
// workflow terminates with no state changes and the reason reaches the
// proposer.
type Rejection struct {
	Reason string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return "action rejected: " + r.Reason
}

// Rejectf builds a Rejection with a formatted reason.
func Rejectf(format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}
