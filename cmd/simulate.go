package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dc0d/onexit"
	"github.com/spf13/cobra"

	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/report"
	"github.com/mabhi256/paramspec/internal/simulation"
)

var (
	simulateConfig = config.Default()
	outputFormat   string
)

var dumpExtensions = []string{".txt", ".log", ".lz4", ".xz"}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a sampled workload and specialize its hot methods",
	Long: `Simulate runs a multi-threaded workload on a simulated VM. Method-entry
yieldpoints are sampled, samples are aggregated into parameter profiles and
methods that become hot are recompiled, specialized where a value dominates.

Examples:
  paramspec simulate                              # Default workload and oracle
  paramspec simulate -o detail --verify           # Full counters, fail on corrupt windows
  paramspec simulate --oracle fixed --target Demo.scale#1=int=2
  paramspec simulate --profile-dump profiles.xz   # Compressed profile dump`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(report.Formats, outputFormat) {
			return fmt.Errorf("invalid output format: %s. Valid options: %v", outputFormat, report.Formats)
		}
		return simulateConfig.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := simulation.New(simulateConfig, logger)
		if err != nil {
			return err
		}

		flush := dumpOnce(p)
		onexit.Register(func() { _ = flush() })

		runErr := p.Run(cmd.Context())
		if err := report.Print(cmd.OutOrStdout(), p.Snapshot(), outputFormat); err != nil {
			return errors.Join(runErr, err)
		}
		return errors.Join(runErr, flush())
	},
}

// dumpOnce writes the configured dumps the first time it is called, either
// at the end of the run or from an exit hook.
func dumpOnce(p *simulation.Pipeline) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			cfg := p.Config()
			err = errors.Join(
				writeDump(cfg.DecisionLog, "decisions", p.RunID(), p.WriteDecisions),
				writeDump(cfg.ProfileDump, "profiles", p.RunID(), p.WriteProfiles),
			)
		})
		return err
	}
}

func writeDump(path, kind, runID string, write func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, report.DefaultDumpName(kind, runID, ".lz4"))
	}
	if err := report.WriteDump(path, write); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	logger.Info("dump written", "kind", kind, "path", path)
	return nil
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	bindConfigFlags(simulateCmd, simulateConfig)
	bindDumpFlags(simulateCmd, simulateConfig)
	simulateCmd.Flags().StringVarP(&outputFormat, "output", "o", "cli", "Output format")

	simulateCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return report.Formats, cobra.ShellCompDirectiveNoFileComp
	})
}
