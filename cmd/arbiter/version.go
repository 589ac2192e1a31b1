package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbiter"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of arbiter",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arbiter version %s\n", strings.TrimSpace(arbiter.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
