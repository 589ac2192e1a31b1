// gen-table writes a starter definitions pack: two workflows and an
// authority policy, saved through loam so the output matches what the
// engine reads back. Useful as a seed for new tables and for exercising
// the full load path in CI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/loam"

	loamAdapter "github.com/aretw0/arbiter/pkg/adapters/loam"
	"github.com/aretw0/arbiter/pkg/dsl"
)

func main() {
	targetDir := "examples/starter-table"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating starter table in: %s\n", targetDir)

	// No versioning: pure file generation.
	repo, err := loam.Init(targetDir, loam.WithVersioning(false))
	if err != nil {
		panic(err)
	}

	typedRepo := loam.NewTypedRepository[loamAdapter.DocumentMeta](repo)
	ctx := context.TODO()

	// 1. Move: automatic, no rolls.
	move := loamAdapter.DocumentMeta{
		"kind":        dsl.KindWorkflow,
		"action_type": "move",
		"version":     1,
		"phases": []map[string]any{
			{
				"name": "apply",
				"effects": []map[string]any{
					{"target": "@proposer", "field": "position", "op": "set", "value": "$to"},
				},
			},
		},
	}
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.DocumentMeta]{
		ID:      "workflows/move",
		Content: "Move the proposer to the destination named in the payload.",
		Data:    move,
	})
	check(err)

	// 2. Attack: a correlated save roll with an auto_roll fallback.
	attack := loamAdapter.DocumentMeta{
		"kind":        dsl.KindWorkflow,
		"action_type": "attack",
		"version":     1,
		"phases": []map[string]any{
			{
				"name": "save",
				"rolls": []map[string]any{
					{
						"target":   "$target",
						"dice":     "1d20+2",
						"purpose":  "dex_save",
						"timeout":  "30s",
						"fallback": "auto_roll",
					},
				},
			},
			{
				"name": "damage",
				"effects": []map[string]any{
					{"target": "$target", "field": "hp", "op": "sub", "read_from": "target_hp", "from_roll": "dex_save"},
				},
			},
		},
	}
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.DocumentMeta]{
		ID:      "workflows/attack",
		Content: "Resolve an attack: the target saves, then takes damage.",
		Data:    attack,
	})
	check(err)

	// 3. Policy: who needs review.
	policy := loamAdapter.DocumentMeta{
		"kind": dsl.KindPolicy,
		"table": map[string]any{
			"move":   "automatic",
			"attack": "reviewable",
		},
	}
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.DocumentMeta]{
		ID:      "policy",
		Content: "Authority policy for the starter table.",
		Data:    policy,
	})
	check(err)

	fmt.Println("Done. Verify contents in", targetDir)
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
