package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sleepsync",
		Short: "Biometric-driven sleep dose sessions",
		Long: `sleepsync computes an hourly sleep-aid dose from recent heart rate
variability, resting heart rate and respiratory rate, adjusted by how you
say you slept, and sends it to a pump on your local network for the length
of a sleep session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("data-dir")
			if dir != "" {
				return os.Setenv(store.DataDirEnv, dir)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default ~/.sleepsync, or $SLEEPSYNC_HOME)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newStartCmd(),
		newRunCmd(),
		newStatusCmd(),
		newCancelCmd(),
		newClearCmd(),
		newDoseCmd(),
		newFeedbackCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newSetupCmd(),
		newMCPServerCmd(),
		newDeviceSimCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
