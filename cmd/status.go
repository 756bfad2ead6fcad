package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Query the running daemon for its version, uptime, and registry sizes.",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.Status(callCtx()))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
