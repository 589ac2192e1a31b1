package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Arbiter is a session authority and orchestration engine",
	Long:  `Arbiter runs proposed actions through declarative workflows, classifies them against an authority policy, and keeps sessions consistent through arbiter outages.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the definition documents")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
}
