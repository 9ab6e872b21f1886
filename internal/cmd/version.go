package cmd

import (
	"fmt"

	"github.com/shivamSspirit/volition/internal/buildconfig"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("volition version %s\n", buildconfig.Version())
		fmt.Printf("  Git commit: %s\n", buildconfig.Commit())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
