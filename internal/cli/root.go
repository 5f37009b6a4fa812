package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Per-user memory engine for conversational agents",
	Long:  "Recall decides what a conversational agent remembers, for how long, and what gets surfaced into a live request's context. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rememberCmd)
}
