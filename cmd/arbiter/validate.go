package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	loamAdapter "github.com/aretw0/arbiter/pkg/adapters/loam"
	"github.com/aretw0/arbiter/pkg/dsl"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the definition documents for consistency",
	Long:  `Loads every workflow and policy document, compiles them, and reports undecodable documents, invalid dice expressions, bad effect operations and conflicting policy entries.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	if !cmd.Flags().Changed("dir") && len(args) > 0 {
		dir = args[0]
	}

	source, err := loamAdapter.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open definitions: %w", err)
	}

	ctx := context.Background()
	defs, err := source.Load(ctx)
	if err != nil {
		return err
	}

	bundle, err := dsl.Build(defs)
	if err != nil {
		return err
	}

	fmt.Printf("Definitions are valid! ✅ (%d workflow(s), %d policy entries)\n",
		len(bundle.Workflows), len(bundle.Policy))
	return nil
}
