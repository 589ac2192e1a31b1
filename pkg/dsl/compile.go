package dsl

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
)

// Bundle is the compiled content of a definition repository.
type Bundle struct {
	Workflows []registry.Workflow
	Policy    domain.PolicyTable
}

// Build decodes and compiles a set of definition documents. Policy tables
// merge; a duplicate action type across policy documents is an error.
func Build(defs []ports.Definition) (*Bundle, error) {
	bundle := &Bundle{Policy: domain.PolicyTable{}}

	for _, def := range defs {
		doc, err := Decode(def.Raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}

		switch d := doc.(type) {
		case WorkflowDoc:
			wf, err := CompileWorkflow(d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", def.Name, err)
			}
			bundle.Workflows = append(bundle.Workflows, wf)
		case PolicyDoc:
			table, err := CompilePolicy(d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", def.Name, err)
			}
			for actionType, level := range table {
				if _, dup := bundle.Policy[actionType]; dup {
					return nil, fmt.Errorf("%s: duplicate policy entry for %q", def.Name, actionType)
				}
				bundle.Policy[actionType] = level
			}
		}
	}
	return bundle, nil
}

// CompilePolicy validates a policy document into an authority table.
func CompilePolicy(doc PolicyDoc) (domain.PolicyTable, error) {
	table := make(domain.PolicyTable, len(doc.Table))
	for actionType, raw := range doc.Table {
		level := domain.AuthorityLevel(raw)
		if !level.Valid() {
			return nil, fmt.Errorf("policy for %q: unknown authority level %q", actionType, raw)
		}
		table[actionType] = level
	}
	return table, nil
}

// CompileWorkflow turns a workflow document into a registrable workflow.
// All structural validation happens here, so a compiled workflow can only
// fail at run time on payload problems (reported as rejections).
func CompileWorkflow(doc WorkflowDoc) (registry.Workflow, error) {
	wf := registry.Workflow{
		ActionType: doc.ActionType,
		Version:    doc.Version,
	}

	for i, phase := range doc.Phases {
		compiled, err := compilePhase(phase)
		if err != nil {
			return registry.Workflow{}, fmt.Errorf("phase %d (%s): %w", i, phase.Name, err)
		}
		wf.Phases = append(wf.Phases, compiled)
	}

	if err := wf.Validate(); err != nil {
		return registry.Workflow{}, err
	}
	return wf, nil
}

type compiledRoll struct {
	target   string
	spec     domain.RollSpec
	timeout  time.Duration
	fallback domain.RollFallback
}

func compilePhase(doc PhaseDoc) (registry.Phase, error) {
	phase := registry.Phase{Name: doc.Name}

	if doc.Skip != nil {
		if doc.Skip.Field == "" {
			return registry.Phase{}, fmt.Errorf("skip needs a field")
		}
		field, want := doc.Skip.Field, doc.Skip.Equals
		phase.Skip = func(run *registry.Run) bool {
			got, ok := run.Payload[field]
			return ok && looseEqual(got, want)
		}
	}

	rolls, err := compileRolls(doc.Rolls)
	if err != nil {
		return registry.Phase{}, err
	}
	if len(rolls) > 0 {
		phase.Rolls = func(run *registry.Run) []domain.RollAsk {
			asks := make([]domain.RollAsk, 0, len(rolls))
			for _, roll := range rolls {
				asks = append(asks, domain.RollAsk{
					TargetID: resolveRef(run, roll.target),
					Spec:     roll.spec,
					Timeout:  roll.timeout,
					Fallback: roll.fallback,
				})
			}
			return asks
		}
	}

	effects, err := compileEffects(doc.Effects)
	if err != nil {
		return registry.Phase{}, err
	}
	notify := doc.Notify
	if len(effects) > 0 || len(notify) > 0 {
		phase.Apply = func(run *registry.Run) error {
			for _, effect := range effects {
				if err := effect(run); err != nil {
					return err
				}
			}
			for _, n := range notify {
				run.Notify(resolveRef(run, n.To), n.Message)
			}
			return nil
		}
	}

	return phase, nil
}

func compileRolls(docs []RollDoc) ([]compiledRoll, error) {
	rolls := make([]compiledRoll, 0, len(docs))
	for i, doc := range docs {
		if doc.Target == "" {
			return nil, fmt.Errorf("roll %d: missing target", i)
		}
		spec, err := ParseDice(doc.Dice)
		if err != nil {
			return nil, fmt.Errorf("roll %d: %w", i, err)
		}
		spec.Purpose = doc.Purpose

		roll := compiledRoll{target: doc.Target, spec: spec}
		if doc.Timeout != "" {
			roll.timeout, err = time.ParseDuration(doc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("roll %d: invalid timeout: %w", i, err)
			}
		}
		switch fb := domain.RollFallback(doc.Fallback); fb {
		case "", domain.FallbackAutoRoll, domain.FallbackSkip, domain.FallbackAbort:
			roll.fallback = fb
		default:
			return nil, fmt.Errorf("roll %d: unknown fallback %q", i, doc.Fallback)
		}
		rolls = append(rolls, roll)
	}
	return rolls, nil
}

type effectFunc func(*registry.Run) error

func compileEffects(docs []EffectDoc) ([]effectFunc, error) {
	effects := make([]effectFunc, 0, len(docs))
	for i, doc := range docs {
		effect, err := compileEffect(doc)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		effects = append(effects, effect)
	}
	return effects, nil
}

func compileEffect(doc EffectDoc) (effectFunc, error) {
	if doc.Target == "" || doc.Field == "" {
		return nil, fmt.Errorf("needs target and field")
	}
	op := doc.Op
	if op == "" {
		op = "set"
	}
	switch op {
	case "set":
	case "add", "sub":
		if doc.ReadFrom == "" {
			return nil, fmt.Errorf("op %q needs read_from", op)
		}
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
	if doc.FromRoll == "" && doc.Value == nil {
		return nil, fmt.Errorf("needs value or from_roll")
	}

	d := doc
	return func(run *registry.Run) error {
		value, ok, err := effectValue(run, d)
		if err != nil {
			return err
		}
		if !ok {
			// The referenced roll branch was skipped; so is the effect.
			return nil
		}

		change := domain.StateChange{
			TargetID: resolveRef(run, d.Target),
			Field:    d.Field,
		}
		if d.ReadFrom != "" {
			old, present := run.Payload[d.ReadFrom]
			if !present {
				return registry.Rejectf("payload field %q missing", d.ReadFrom)
			}
			change.OldValue = old
		}

		switch op {
		case "set":
			change.NewValue = value
		case "add", "sub":
			old, okOld := toNumber(change.OldValue)
			amount, okAmt := toNumber(value)
			if !okOld || !okAmt {
				return registry.Rejectf("field %q is not numeric", d.Field)
			}
			if op == "sub" {
				amount = -amount
			}
			change.NewValue = normalizeNumber(old + amount)
		}

		run.Append(change)
		return nil
	}, nil
}

// effectValue resolves the effect input. The middle return is false when
// the value legitimately does not exist (a skipped roll branch).
func effectValue(run *registry.Run, doc EffectDoc) (any, bool, error) {
	if doc.FromRoll != "" {
		found := false
		for _, outcome := range run.Rolls() {
			if outcome.Ask.Spec.Purpose != doc.FromRoll {
				continue
			}
			found = true
			if outcome.Err == nil {
				return outcome.Result.Total, true, nil
			}
		}
		if found {
			return nil, false, nil
		}
		return nil, false, registry.Rejectf("no roll with purpose %q", doc.FromRoll)
	}

	if ref, ok := doc.Value.(string); ok && strings.HasPrefix(ref, "$") {
		value, present := run.Payload[ref[1:]]
		if !present {
			return nil, false, registry.Rejectf("payload field %q missing", ref[1:])
		}
		return value, true, nil
	}
	return doc.Value, true, nil
}

// resolveRef resolves a participant reference: "@proposer", a "$field"
// payload lookup, or a literal ID.
func resolveRef(run *registry.Run, ref string) string {
	switch {
	case ref == "@proposer":
		return run.Action.ProposerID
	case strings.HasPrefix(ref, "$"):
		value, _ := run.String(ref[1:])
		return value
	default:
		return ref
	}
}

func looseEqual(a, b any) bool {
	if na, ok := toNumber(a); ok {
		nb, okB := toNumber(b)
		return okB && na == nb
	}
	return a == b
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// normalizeNumber keeps integral results as int so committed values match
// what hosts put in payloads.
func normalizeNumber(f float64) any {
	if f == float64(int(f)) {
		return int(f)
	}
	return f
}
