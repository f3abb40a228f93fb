package cmd

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/specialization"
	"github.com/mabhi256/paramspec/utils"
)

// bufferSize lets --buffer-size take human sizes.
type bufferSize struct{ n *int }

func (b bufferSize) String() string {
	if b.n == nil {
		return ""
	}
	return units.HumanSize(float64(*b.n))
}

func (b bufferSize) Set(s string) error {
	n, err := config.ParseBufferSize(s)
	if err != nil {
		return err
	}
	*b.n = n
	return nil
}

func (b bufferSize) Type() string { return "size" }

// targetList collects repeated --target flags.
type targetList struct{ targets *[]specialization.FixedTarget }

func (t targetList) String() string {
	if t.targets == nil {
		return "[]"
	}
	return fmt.Sprint(*t.targets)
}

func (t targetList) Set(s string) error {
	target, err := specialization.ParseFixedTarget(s)
	if err != nil {
		return err
	}
	*t.targets = append(*t.targets, target)
	return nil
}

func (t targetList) Type() string { return "target" }

// bindConfigFlags exposes the run configuration on cmd.
func bindConfigFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	f.VarP(bufferSize{&cfg.BufferCapacity}, "buffer-size", "b", "Sample buffer capacity (e.g. 20000, 64kB)")
	f.IntVarP(&cfg.SampleQuota, "quota", "n", cfg.SampleQuota, "Samples per sampling window")
	f.BoolVar(&cfg.ProfileVMMethods, "profile-vm-methods", cfg.ProfileVMMethods, "Also sample VM-internal methods")
	f.BoolVar(&cfg.VerifyAssertions, "verify", cfg.VerifyAssertions, "Treat integrity violations as fatal")

	f.BoolVar(&cfg.Summarized, "summarized", cfg.Summarized, "Aggregate samples into per-parameter frequency tables")
	f.StringVarP(&cfg.CandidateType, "candidates", "c", cfg.CandidateType, "Candidate kinds: all, values or types")

	f.StringVar(&cfg.OraclePolicy, "oracle", cfg.OraclePolicy, "Specialization policy")
	f.IntVar(&cfg.MaxOptLevel, "max-opt", cfg.MaxOptLevel, "Highest optimization level of the compiler")
	f.Var(targetList{&cfg.Targets}, "target", "Fixed specialization Class.method#param=kind=value (repeatable)")

	f.IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, "Mutator threads")
	f.IntVar(&cfg.Invocations, "invocations", cfg.Invocations, "Calls per mutator thread")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Workload random seed")
	f.IntVar(&cfg.OptLevel, "opt-level", cfg.OptLevel, "Level hot methods are recompiled at")
	f.IntVar(&cfg.HotThreshold, "hot", cfg.HotThreshold, "Samples before a method is recompiled")

	cmd.RegisterFlagCompletionFunc("oracle", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var policies []string
		for _, p := range specialization.Policies() {
			policies = append(policies, string(p))
		}
		return policies, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("candidates", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			profile.CandidatesAll.String(),
			profile.CandidatesValuesOnly.String(),
			profile.CandidatesTypesOnly.String(),
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// bindDumpFlags adds the dump destinations. Both accept a file or a
// directory; .lz4 and .xz files are compressed.
func bindDumpFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.DecisionLog, "decision-log", "", "Write specialization decisions to this file or directory")
	cmd.Flags().StringVar(&cfg.ProfileDump, "profile-dump", "", "Write parameter profiles to this file or directory")

	complete := utils.CompleteFilesByExtension(dumpExtensions)
	cmd.RegisterFlagCompletionFunc("decision-log", complete)
	cmd.RegisterFlagCompletionFunc("profile-dump", complete)
}
