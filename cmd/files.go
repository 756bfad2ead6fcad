package cmd

import (
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files <task-id> [path]",
	Short: "List a sandbox directory's children",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		path := ""
		if len(args) == 2 {
			path = args[1]
		}
		c := newClient()
		printResult(c.Files(callCtx(), args[0], path))
	},
}

var validPathCmd = &cobra.Command{
	Use:   "valid-path <task-id> <path>",
	Short: "Check whether a path resolves inside a task's sandbox",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.ValidPath(callCtx(), args[0], args[1]))
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(validPathCmd)
}
