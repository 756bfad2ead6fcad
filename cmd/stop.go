package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the observer daemon",
	Long:  "Send a daemon.shutdown command over the control plane, triggering a graceful stop.",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		if err := c.Ping(callCtx()); err != nil {
			exitWithError("daemon is not running or socket is inaccessible", err)
		}
		resp, err := c.Shutdown(callCtx())
		printResult(resp, err)
		fmt.Println("shutdown requested.")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
