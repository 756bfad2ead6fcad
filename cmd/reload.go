package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon's configuration",
	Long: `Send a daemon.reload command over the control plane. Only the log
level is applied to the running process; other fields require a
restart to take effect (the daemon logs which ones changed).`,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		resp, err := c.Reload(callCtx())
		printResult(resp, err)
		fmt.Println("reload requested.")
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
