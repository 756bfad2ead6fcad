package cmd

import (
	"github.com/spf13/cobra"
)

var processRun int

var processCmd = &cobra.Command{
	Use:   "process <task-id> <process-name>",
	Short: "Show one process run's record",
	Long:  "Shows the most recent run by default; pass --run to select a specific (possibly negative) run index.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		var run *int
		if cmd.Flags().Changed("run") {
			run = &processRun
		}
		printResult(c.Process(callCtx(), args[0], args[1], run))
	},
}

var taskProcessesCmd = &cobra.Command{
	Use:   "task-processes <task-id>",
	Short: "Bucket a task's processes by current run state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.TaskProcesses(callCtx(), args[0]))
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <task-id> <process-name>",
	Short: "Show one process run's stdout/stderr log paths",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		var run *int
		if cmd.Flags().Changed("run") {
			run = &processRun
		}
		printResult(c.Logs(callCtx(), args[0], args[1], run))
	},
}

func init() {
	processCmd.Flags().IntVar(&processRun, "run", 0, "process run index (supports negative indexing)")
	logsCmd.Flags().IntVar(&processRun, "run", 0, "process run index (supports negative indexing)")
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(taskProcessesCmd)
	rootCmd.AddCommand(logsCmd)
}
