package cmd

import (
	"github.com/spf13/cobra"
)

var (
	tasksType   string
	tasksOffset int
	tasksNum    int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks known to the observer",
	Long: `List tasks in mtime-descending order, merging config-derived fields
with live state. --type selects active, finished, or all (default).`,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		printResult(c.Main(callCtx(), tasksType, tasksOffset, tasksNum))
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksType, "type", "all", "active, finished, or all")
	tasksCmd.Flags().IntVar(&tasksOffset, "offset", 0, "pagination offset (negative wraps from the end)")
	tasksCmd.Flags().IntVar(&tasksNum, "num", 20, "maximum rows to return")
	rootCmd.AddCommand(tasksCmd)
}
