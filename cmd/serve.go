package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskobs.dev/observer/internal/daemon"
)

var pidFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the observer daemon in the foreground",
	Long: `Run the observer daemon in the foreground: start the reconciliation
loop, the control plane socket, and the metrics server, then block
until a termination signal or the daemon.shutdown control command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"pid file path (overrides the configured control.pid_file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return fmt.Errorf("failed to construct daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon exited: %v\n", err)
		return err
	}
	return nil
}
