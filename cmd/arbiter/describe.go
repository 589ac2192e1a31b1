package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/presentation/graph"
	"github.com/aretw0/arbiter/internal/presentation/tui"
	loamAdapter "github.com/aretw0/arbiter/pkg/adapters/loam"
	"github.com/aretw0/arbiter/pkg/dsl"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Render the definition documents for review",
	Long:  `Loads every workflow and policy document and renders a human-readable summary, including a Mermaid diagram per workflow.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		if !cmd.Flags().Changed("dir") && len(args) > 0 {
			dir = args[0]
		}

		if err := runDescribe(dir); err != nil {
			fmt.Printf("Describe failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(dir string) error {
	tui.PrintBanner(arbiter.Version)

	source, err := loamAdapter.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open definitions: %w", err)
	}

	defs, err := source.Load(context.Background())
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, def := range defs {
		doc, err := dsl.Decode(def.Raw)
		if err != nil {
			return fmt.Errorf("document %s: %w", def.Name, err)
		}

		switch d := doc.(type) {
		case dsl.WorkflowDoc:
			sb.WriteString(fmt.Sprintf("# %s (v%d)\n\n", d.ActionType, d.Version))
			for _, phase := range d.Phases {
				sb.WriteString(fmt.Sprintf("- **%s**: %d roll(s), %d effect(s)\n",
					phase.Name, len(phase.Rolls), len(phase.Effects)))
			}
			sb.WriteString("\n```mermaid\n")
			sb.WriteString(graph.GenerateMermaid(d))
			sb.WriteString("```\n\n")
		case dsl.PolicyDoc:
			sb.WriteString("# Authority Policy\n\n")
			sb.WriteString("| Action Type | Authority |\n|---|---|\n")
			for actionType, level := range d.Table {
				sb.WriteString(fmt.Sprintf("| %s | %s |\n", actionType, level))
			}
			sb.WriteString("\n")
		}
	}

	render := tui.NewRenderer()
	out, err := render(sb.String())
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	fmt.Print(out)
	return nil
}
