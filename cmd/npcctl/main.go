// Package main provides npcctl, the operator tool for NPC content and the
// running NPC server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "npcctl",
		Short:         "Validate NPC content, simulate fleets, and drive a running NPC server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(validateCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(bridgeCmd())
	root.AddCommand(versionCmd())
	return root
}
