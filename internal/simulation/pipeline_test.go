package simulation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/paramspec/internal/aggregator"
	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/specialization"
	"github.com/mabhi256/paramspec/internal/vmsim"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.VerifyAssertions = true
	cfg.Threads = 4
	cfg.Invocations = 2000
	cfg.SampleQuota = 200
	cfg.HotThreshold = 100
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Threads = 0
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunSpecializesHotMethods(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	snap := p.Snapshot()
	assert.Equal(t, Batches, snap.Batches)
	assert.Zero(t, snap.IntegrityFailures)
	assert.Positive(t, snap.Passes)
	assert.Equal(t, int64(4*2000), snap.Counters.Prologue)
	assert.Positive(t, snap.Counters.Skipped[sampler.SkipOptCompiled], "opt-compiled bodies are never sampled")

	f := p.Scenario.Target("f").Method
	require.True(t, p.Registry.ShouldCallDirectly(f))
	versions := p.Registry.SpecialVersions(f)
	require.Len(t, versions, 1)
	index, value, ok := versions[0].Context.Fixed()
	require.True(t, ok)
	assert.Equal(t, 0, index)
	assert.Equal(t, profile.Int(7), value)
	require.NotNil(t, versions[0].Body)
	assert.Equal(t, model.CompilerOpt, versions[0].Body.Compiler)
	assert.Zero(t, snap.Pending)
	assert.Equal(t, len(snap.Variants), snap.Specialized())

	// Acted-on profiles are gone; the general body was replaced.
	assert.False(t, p.Organizer.ProfileAvailable(f))
	current, ok := p.Scenario.Runtime.Methods.Current(f.ID)
	require.True(t, ok)
	assert.Equal(t, model.CompilerOpt, current.Compiler)

	lookup := p.Scenario.Target("lookup").Method
	for _, v := range p.Registry.SpecialVersions(lookup) {
		_, value, _ := v.Context.Fixed()
		assert.NotEqual(t, profile.DescType, value.Kind, "declared String type is never a candidate")
	}

	assert.NoError(t, p.Err())
}

func TestNeverPolicyRecordsDecisionsOnly(t *testing.T) {
	cfg := testConfig()
	cfg.OraclePolicy = string(specialization.PolicyNever)
	p, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	snap := p.Snapshot()
	assert.Empty(t, snap.Variants)
	require.NotEmpty(t, snap.Decisions)
	for _, d := range snap.Decisions {
		assert.Equal(t, specialization.ReasonDisabled, d.Reason())
	}
}

func TestFixedPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.OraclePolicy = string(specialization.PolicyFixed)
	cfg.Targets = []specialization.FixedTarget{{Class: "Demo", Method: "scale", Param: 1, Value: profile.Int(2)}}
	p, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	scale := p.Scenario.Target("scale").Method
	versions := p.Registry.SpecialVersions(scale)
	require.Len(t, versions, 1)
	index, value, _ := versions[0].Context.Fixed()
	assert.Equal(t, 1, index)
	assert.Equal(t, profile.Int(2), value)
}

func TestFixedPolicyWaitsForPluginClass(t *testing.T) {
	cfg := testConfig()
	cfg.HotThreshold = 1
	cfg.OraclePolicy = string(specialization.PolicyFixed)
	cfg.Targets = []specialization.FixedTarget{{Class: vmsim.PluginClass, Method: "apply", Param: 0, Value: profile.Int(1)}}
	p, err := New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.RunBatch(ctx, 500))
	assert.False(t, p.Scenario.Runtime.Methods.HasClass(vmsim.PluginClass))
	decisions := p.Decisions.Decisions()
	require.NotEmpty(t, decisions)
	for _, d := range decisions {
		assert.Equal(t, specialization.ReasonWaitingForClassLoading, d.Reason())
	}
	assert.Empty(t, p.Registry.Methods())

	require.NoError(t, p.RunBatch(ctx, 500))
	apply := p.Scenario.Target("apply")
	require.NotNil(t, apply)
	versions := p.Registry.SpecialVersions(apply.Method)
	require.Len(t, versions, 1)
	assert.NotNil(t, versions[0].Body)
	_, value, _ := versions[0].Context.Fixed()
	assert.Equal(t, profile.Int(1), value)
}

func TestCorruptWindowIsNeverActedOn(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	buf := p.Sampler.Buffer()
	buf.EncodeInt(buf.Capacity()-4, 1)

	err = p.RunBatch(ctx, 2000)
	require.ErrorIs(t, err, aggregator.ErrIntegrity)
	assert.Equal(t, int64(1), p.Organizer.IntegrityFailures())
	assert.Empty(t, p.Registry.Methods())
	assert.Empty(t, p.Decisions.Decisions())

	assert.ErrorIs(t, p.RunBatch(ctx, 2000), aggregator.ErrIntegrity, "no batch runs after a fatal condition")
	assert.Equal(t, 1, p.Snapshot().Batches)
}

func TestWriters(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, p.RunBatch(context.Background(), 500))

	var profiles bytes.Buffer
	require.NoError(t, p.WriteProfiles(&profiles))
	assert.Contains(t, profiles.String(), "DONE WITH PROFILES\n")
	assert.Contains(t, profiles.String(), "TOTAL_OPT_COMPILATIONS\t")

	var decisions bytes.Buffer
	require.NoError(t, p.WriteDecisions(&decisions))
	assert.True(t, strings.HasPrefix(decisions.String(), "Begin of specialization decisions.\n"))
}

func TestCancelledRun(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
}
