package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

const appName = "paramspec"

var (
	verbose bool
	quiet   bool
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Parameter value profiling and method specialization",
	Long: `paramspec samples the parameter values hot methods are called with, aggregates
them into per-method profiles and specializes methods for values that dominate.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose && quiet {
			return fmt.Errorf("--verbose and --quiet are mutually exclusive")
		}
		logger = newLogger(cmd.ErrOrStderr())

		if cmd.Name() == "install" || cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if isShellSupported(cmd.Root()) && !completionsExist(cmd.Root()) {
			fmt.Fprintln(cmd.ErrOrStderr(), "🔧 First run detected, setting up paramspec...")
			if installCompletions(cmd.Root()) == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "✅ Shell completions installed")
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Auto-setup failed. Run '%s install' to try again.\n", appName)
			}
		}
		return nil
	},
}

// newLogger logs warnings by default, everything with --verbose and
// nothing with --quiet.
func newLogger(w io.Writer) *slog.Logger {
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install shell completions",
	Run: func(cmd *cobra.Command, args []string) {
		if !isInPath() {
			printPathInstructions()
			return
		}

		if !isShellSupported(cmd.Root()) {
			fmt.Printf("❌ Shell completion not supported for: %s\n", detectShell())
			fmt.Println("Supported shells: bash, zsh, fish, powershell")
			return
		}

		if completionsExist(cmd.Root()) {
			fmt.Println("✅ Already configured!")
			return
		}

		fmt.Println("📦 Installing completions...")
		if err := installCompletions(cmd.Root()); err != nil {
			fmt.Printf("❌ Failed: %v\n", err)
		} else {
			fmt.Println("✅ Done! Restart your shell to enable tab completion.")
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}

type completionConfig struct {
	dir     string
	file    string
	genFunc func(io.Writer) error
}

func completionConfigs(root *cobra.Command) map[string]completionConfig {
	home, _ := os.UserHomeDir()
	return map[string]completionConfig{
		"bash": {
			dir:     filepath.Join(home, ".local/share/bash-completion/completions"),
			file:    appName,
			genFunc: root.GenBashCompletion,
		},
		"zsh": {
			dir:     filepath.Join(home, ".zsh/completions"),
			file:    "_" + appName,
			genFunc: root.GenZshCompletion,
		},
		"fish": {
			dir:     filepath.Join(home, ".config/fish/completions"),
			file:    appName + ".fish",
			genFunc: func(w io.Writer) error { return root.GenFishCompletion(w, true) },
		},
		"powershell": {
			dir:     home,
			file:    appName + "_completion.ps1",
			genFunc: root.GenPowerShellCompletionWithDesc,
		},
	}
}

func completionsExist(root *cobra.Command) bool {
	config, ok := completionConfigs(root)[detectShell()]
	if !ok {
		return false
	}
	_, err := os.Stat(filepath.Join(config.dir, config.file))
	return err == nil
}

func isShellSupported(root *cobra.Command) bool {
	_, ok := completionConfigs(root)[detectShell()]
	return ok
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "powershell"
	}

	shell := filepath.Base(os.Getenv("SHELL"))
	if shell == "" || shell == "." {
		return "bash"
	}
	return shell
}

func installCompletions(root *cobra.Command) error {
	shell := detectShell()
	config, ok := completionConfigs(root)[shell]
	if !ok {
		return fmt.Errorf("unsupported shell: %s", shell)
	}

	if err := os.MkdirAll(config.dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(config.dir, config.file))
	if err != nil {
		return err
	}
	defer file.Close()

	return config.genFunc(file)
}

func isInPath() bool {
	execPath, err := os.Executable()
	if err != nil {
		return false
	}

	paths := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	return slices.Contains(paths, filepath.Dir(execPath))
}

func printPathInstructions() {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	fmt.Printf("❌ %s not in PATH. Binary location: %s\n\n", appName, execPath)

	if runtime.GOOS == "windows" {
		fmt.Printf("Add to PATH: %s\n", execDir)
	} else {
		fmt.Printf("Add to shell profile: export PATH=\"%s:$PATH\"\n", execDir)
		fmt.Printf("Or copy to: /usr/local/bin\n")
	}
}

func init() {
	rootCmd.AddCommand(installCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline activity")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logging")
}
