package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "volition",
	Short: "Autonomous decision core",
	Long:  `volition runs the autonomous decision core: belief tracking, goal management, multi-agent coordination, and the cognitive cycle, exposed over HTTP.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
