package dsl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/dsl"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
)

const attackDoc = `
kind: workflow
action_type: attack
version: 2
phases:
  - name: resolve
    skip:
      field: blessed
      equals: true
    rolls:
      - target: $defender
        dice: 1d20
        purpose: save
        timeout: 30s
        fallback: auto_roll
  - name: apply
    effects:
      - target: $defender
        field: hp
        op: sub
        read_from: defender_hp
        from_roll: save
    notify:
      - to: "@proposer"
        message: "attack resolved"
`

const policyDoc = `
kind: policy
table:
  move: automatic
  attack: reviewable
`

func TestParseDice(t *testing.T) {
	cases := []struct {
		expr     string
		count    int
		sides    int
		modifier int
		wantErr  bool
	}{
		{expr: "2d6", count: 2, sides: 6},
		{expr: "d20", count: 1, sides: 20},
		{expr: "1d8+3", count: 1, sides: 8, modifier: 3},
		{expr: "4d6-1", count: 4, sides: 6, modifier: -1},
		{expr: "0d6", wantErr: true},
		{expr: "2d1", wantErr: true},
		{expr: "banana", wantErr: true},
		{expr: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			spec, err := dsl.ParseDice(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, spec.Dice, 1)
			assert.Equal(t, tc.count, spec.Dice[0].Count)
			assert.Equal(t, tc.sides, spec.Dice[0].Sides)
			assert.Equal(t, tc.modifier, spec.Modifier)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := dsl.Decode([]byte("kind: mystery\n"))
	assert.ErrorContains(t, err, "unknown document kind")
}

func TestDecode_UnusedKeysRejected(t *testing.T) {
	_, err := dsl.Decode([]byte("kind: policy\ntabel: {}\n"))
	assert.Error(t, err)
}

func TestCompilePolicy_InvalidLevel(t *testing.T) {
	doc, err := dsl.Decode([]byte("kind: policy\ntable:\n  attack: sometimes\n"))
	require.NoError(t, err)

	_, err = dsl.CompilePolicy(doc.(dsl.PolicyDoc))
	assert.ErrorContains(t, err, "unknown authority level")
}

func TestCompileWorkflow_EndToEnd(t *testing.T) {
	doc, err := dsl.Decode([]byte(attackDoc))
	require.NoError(t, err)

	wf, err := dsl.CompileWorkflow(doc.(dsl.WorkflowDoc))
	require.NoError(t, err)
	assert.Equal(t, "attack", wf.ActionType)
	assert.Equal(t, 2, wf.Version)
	require.Len(t, wf.Phases, 2)

	run := registry.NewRun(domain.ActionRequest{
		ID:         "act-1",
		ProposerID: "pc-1",
		ActionType: "attack",
		Payload: map[string]any{
			"defender":    "goblin-1",
			"defender_hp": 12,
		},
	}, domain.AuthorityReviewable)

	resolve := wf.Phases[0]
	assert.False(t, resolve.Skip(run))

	asks := resolve.Rolls(run)
	require.Len(t, asks, 1)
	assert.Equal(t, "goblin-1", asks[0].TargetID)
	assert.Equal(t, 30*time.Second, asks[0].Timeout)
	assert.Equal(t, domain.FallbackAutoRoll, asks[0].Fallback)
	assert.Equal(t, "save", asks[0].Spec.Purpose)

	run.EnterPhase("resolve")
	run.RecordRolls([]registry.RollOutcome{{
		Ask:    asks[0],
		Result: domain.RollResult{Total: 7},
	}})

	run.EnterPhase("apply")
	require.NoError(t, wf.Phases[1].Apply(run))

	changes := run.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "goblin-1", changes[0].TargetID)
	assert.Equal(t, "hp", changes[0].Field)
	assert.Equal(t, 12, changes[0].OldValue)
	assert.Equal(t, 5, changes[0].NewValue)

	notes := run.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "pc-1", notes[0].Recipient)
}

func TestCompileWorkflow_SkipPredicate(t *testing.T) {
	doc, err := dsl.Decode([]byte(attackDoc))
	require.NoError(t, err)
	wf, err := dsl.CompileWorkflow(doc.(dsl.WorkflowDoc))
	require.NoError(t, err)

	run := registry.NewRun(domain.ActionRequest{
		Payload: map[string]any{"blessed": true},
	}, domain.AuthorityAutomatic)
	assert.True(t, wf.Phases[0].Skip(run))
}

func TestCompileWorkflow_SkippedRollSkipsEffect(t *testing.T) {
	doc, err := dsl.Decode([]byte(attackDoc))
	require.NoError(t, err)
	wf, err := dsl.CompileWorkflow(doc.(dsl.WorkflowDoc))
	require.NoError(t, err)

	run := registry.NewRun(domain.ActionRequest{
		ProposerID: "pc-1",
		Payload:    map[string]any{"defender": "goblin-1", "defender_hp": 12},
	}, domain.AuthorityAutomatic)

	run.EnterPhase("resolve")
	run.RecordRolls([]registry.RollOutcome{{
		Ask:      domain.RollAsk{Spec: domain.RollSpec{Purpose: "save"}},
		Err:      domain.ErrRollTimeout,
		TimedOut: true,
	}})

	run.EnterPhase("apply")
	require.NoError(t, wf.Phases[1].Apply(run))
	assert.Empty(t, run.Changes())
}

func TestCompileWorkflow_MissingPayloadRejects(t *testing.T) {
	doc, err := dsl.Decode([]byte(attackDoc))
	require.NoError(t, err)
	wf, err := dsl.CompileWorkflow(doc.(dsl.WorkflowDoc))
	require.NoError(t, err)

	run := registry.NewRun(domain.ActionRequest{
		Payload: map[string]any{"defender": "goblin-1"},
	}, domain.AuthorityAutomatic)
	run.EnterPhase("resolve")
	run.RecordRolls([]registry.RollOutcome{{
		Ask:    domain.RollAsk{Spec: domain.RollSpec{Purpose: "save"}},
		Result: domain.RollResult{Total: 7},
	}})

	err = wf.Phases[1].Apply(run)
	var rejection *registry.Rejection
	assert.ErrorAs(t, err, &rejection)
}

func TestCompileWorkflow_BadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "bad dice", doc: "kind: workflow\naction_type: a\nversion: 1\nphases:\n  - name: p\n    rolls:\n      - target: x\n        dice: banana\n"},
		{name: "bad fallback", doc: "kind: workflow\naction_type: a\nversion: 1\nphases:\n  - name: p\n    rolls:\n      - target: x\n        dice: 1d6\n        fallback: retry\n"},
		{name: "bad op", doc: "kind: workflow\naction_type: a\nversion: 1\nphases:\n  - name: p\n    effects:\n      - target: x\n        field: hp\n        op: multiply\n        value: 2\n"},
		{name: "no phases", doc: "kind: workflow\naction_type: a\nversion: 1\n"},
		{name: "empty phase", doc: "kind: workflow\naction_type: a\nversion: 1\nphases:\n  - name: p\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := dsl.Decode([]byte(tc.doc))
			require.NoError(t, err)
			_, err = dsl.CompileWorkflow(doc.(dsl.WorkflowDoc))
			assert.Error(t, err)
		})
	}
}

func TestBuild_MergesDocuments(t *testing.T) {
	bundle, err := dsl.Build([]ports.Definition{
		{Name: "attack.yaml", Raw: []byte(attackDoc)},
		{Name: "policy.yaml", Raw: []byte(policyDoc)},
	})
	require.NoError(t, err)

	require.Len(t, bundle.Workflows, 1)
	assert.Equal(t, "attack", bundle.Workflows[0].ActionType)
	assert.Equal(t, domain.AuthorityAutomatic, bundle.Policy["move"])
	assert.Equal(t, domain.AuthorityReviewable, bundle.Policy["attack"])
}

func TestBuild_DuplicatePolicyEntry(t *testing.T) {
	_, err := dsl.Build([]ports.Definition{
		{Name: "a.yaml", Raw: []byte(policyDoc)},
		{Name: "b.yaml", Raw: []byte(policyDoc)},
	})
	assert.ErrorContains(t, err, "duplicate policy entry")
}
