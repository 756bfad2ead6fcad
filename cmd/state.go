package cmd

import (
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state <task-id>",
	Short: "Show one task's header-derived summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.State(callCtx(), args[0]))
	},
}

var rawStateCmd = &cobra.Command{
	Use:   "raw-state <task-id>",
	Short: "Show one task's full checkpoint-derived RunnerState",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.RawState(callCtx(), args[0]))
	},
}

var statusesCmd = &cobra.Command{
	Use:   "statuses <task-id>",
	Short: "Show one task's status history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.TaskStatuses(callCtx(), args[0]))
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(rawStateCmd)
	rootCmd.AddCommand(statusesCmd)
}
