package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/report"
	"github.com/mabhi256/paramspec/internal/specialization"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHELL", "/bin/sh")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

var smallRun = []string{"simulate", "-q", "-o", "cli", "--threads", "2", "--invocations", "400", "--quota", "50", "--hot", "20"}

func TestSimulate(t *testing.T) {
	out, err := execute(t, smallRun...)
	require.NoError(t, err)
	assert.Contains(t, out, "Parameter Specialization Report")
	assert.Contains(t, out, "SPECIALIZATION")
}

func TestSimulateWritesDumps(t *testing.T) {
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles.xz")
	args := append(append([]string{}, smallRun...), "--profile-dump", profiles, "--decision-log", dir)
	t.Cleanup(func() {
		simulateConfig.ProfileDump = ""
		simulateConfig.DecisionLog = ""
	})

	_, err := execute(t, args...)
	require.NoError(t, err)

	r, err := report.OpenDump(profiles)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DONE WITH PROFILES")

	logs, err := filepath.Glob(filepath.Join(dir, "decisions-*.lz4"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSimulateRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "simulate", "-o", "html")
	assert.ErrorContains(t, err, "invalid output format")

	_, err = execute(t, "simulate", "-o", "cli", "--buffer-size", "lots")
	assert.ErrorContains(t, err, "buffer size")

	_, err = execute(t, "simulate", "--target", "Demo.f")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "--verbose", "--quiet")
	assert.ErrorContains(t, err, "mutually exclusive")
	verbose, quiet = false, false
}

func TestConfigFlags(t *testing.T) {
	cfg := config.Default()
	cmd := &cobra.Command{Use: "test"}
	bindConfigFlags(cmd, cfg)
	require.NoError(t, cmd.ParseFlags([]string{
		"-b", "64kB", "--oracle", "FIXED", "--target", "Demo.scale#1=int=2", "--target", "Demo.f#0=NULL",
	}))

	assert.Equal(t, 64000, cfg.BufferCapacity)
	assert.Equal(t, "FIXED", cfg.OraclePolicy)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []specialization.FixedTarget{
		{Class: "Demo", Method: "scale", Param: 1, Value: profile.Int(2)},
		{Class: "Demo", Method: "f", Param: 0, Value: profile.Null()},
	}, cfg.Targets)
	assert.Equal(t, "64kB", cmd.Flags().Lookup("buffer-size").Value.String())
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "paramspec version dev\n", out)

	version = "v1.2.3"
	t.Cleanup(func() { version = "dev" })
	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "paramspec version v1.2.3\n", out)
}

func TestWriteDumpSkipsEmptyPath(t *testing.T) {
	called := false
	err := writeDump("", "profiles", "run", func(io.Writer) error { called = true; return nil })
	assert.NoError(t, err)
	assert.False(t, called)
}
