package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/simulation"
	"github.com/mabhi256/paramspec/internal/watch"
)

var watchConfig = config.Default()

var watchCmd = &cobra.Command{
	Use: "watch",
	Short: `Watch runs the simulated workload batch after batch and shows live:
- Sampled and skipped yieldpoints by cause
- Parameter profiles of sampled methods
- Specialization decisions and compiled variants

Examples:
  paramspec watch                     # Default workload, one batch every 500ms
  paramspec watch -i 100 -t 8         # Faster refresh, more mutator threads
  paramspec watch --oracle eager      # Specialize every profiled method`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return watchConfig.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// The TUI owns the terminal, logs are dropped.
		p, err := simulation.New(watchConfig, nil)
		if err != nil {
			return err
		}
		if err := watch.StartTUI(p); err != nil {
			return fmt.Errorf("unable to start TUI: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	bindConfigFlags(watchCmd, watchConfig)
	watchCmd.Flags().IntVarP(&watchConfig.Interval, "interval", "i", watchConfig.Interval, "Update interval in ms")
}
