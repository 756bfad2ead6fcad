// Package cmd implements the observer CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
)

// rootCmd is the base command when taskobsd is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "taskobsd",
	Short: "Task observer: reconciles and serves task state from checkpoint logs",
	Long: `taskobsd watches a tree of per-task checkpoint logs written by a task
runner, reconciles them into an in-memory view of active and finished
tasks, and serves that view over a local Unix Domain Socket control
plane and a Prometheus metrics endpoint.`,
	Version: "0.1.0",
}

// Execute adds all child commands to rootCmd and runs it. Called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/taskobs/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/taskobs.sock",
		"control plane socket path")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
