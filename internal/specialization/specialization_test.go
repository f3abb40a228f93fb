package specialization

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/registry"
	"github.com/mabhi256/paramspec/internal/vm"
	"github.com/mabhi256/paramspec/internal/vmsim"
)

type program struct {
	rt      *registry.Runtime
	intT    *model.TypeRef
	t, s, u *model.TypeRef
	f       *model.Method // static f(int, T)
	visit   *model.Method // instance visit(int, int)
}

func newProgram() *program {
	rt := registry.NewRuntime()
	object := rt.Types.Define("Object", model.KindReference, nil)
	p := &program{rt: rt, intT: rt.Types.Primitive(model.KindInt)}
	p.t = rt.Types.Define("T", model.KindReference, object)
	p.s = rt.Types.Define("S", model.KindReference, p.t)
	p.u = rt.Types.Define("U", model.KindReference, p.t)
	p.f = rt.Methods.Load(&model.Method{Class: "Demo", Name: "f", Descriptor: "(ILT;)V", Static: true, Params: []*model.TypeRef{p.intT, p.t}})
	p.visit = rt.Methods.Load(&model.Method{Class: "Demo", Name: "visit", Descriptor: "(II)V", Params: []*model.TypeRef{p.intT, p.intT}})
	return p
}

func record(mp *profile.MethodProfile, n int, values ...func(profile.Recorder)) {
	for range n {
		for _, v := range values {
			v(mp)
		}
	}
}

func intV(v int32) func(profile.Recorder)          { return func(r profile.Recorder) { r.AddInt(v) } }
func typeV(t *model.TypeRef) func(profile.Recorder) { return func(r profile.Recorder) { r.AddType(t) } }

var plan2 = CompilationPlan{OptLevel: 2}

func TestDefaultOracleOnThousandIdenticalSamples(t *testing.T) {
	p := newProgram()
	mp := profile.NewMethodProfile(p.f, profile.CandidatesAll)
	record(mp, 1000, intV(7), typeV(p.s))

	d := DefaultOracle{MaxOptLevel: 2}.ShouldSpecialize(p.f, mp, plan2)
	require.True(t, d.Yes)

	index, value, ok := d.Context.Fixed()
	require.True(t, ok)
	assert.Equal(t, 0, index, "equal counts keep the lower position")
	assert.Equal(t, profile.Int(7), value)
	assert.Nil(t, d.Context.Values[1])

	assert.True(t, strings.HasPrefix(d.String(),
		"SPEC_DECISION Demo f (ILT;)V STATIC PRIM_PARAMS 1 REAL_OBJ_PARAMS 1 ARRAY_PARAMS 0 YES NO_REASON\n"+
			"ParameterValueContext Demo.f(ILT;)V parameters: 0: int=7 | 1: no info | \n"+
			" PROFILES: \n\t------ START PROFILE of f"))
}

func TestDefaultOracleStrictlyHigherCountWins(t *testing.T) {
	p := newProgram()
	mp := profile.NewMethodProfile(p.f, profile.CandidatesAll)
	record(mp, 4, intV(7), typeV(p.s))
	record(mp, 3, intV(8), typeV(p.s))

	d := DefaultOracle{MaxOptLevel: 2}.ShouldSpecialize(p.f, mp, plan2)
	require.True(t, d.Yes)
	index, value, _ := d.Context.Fixed()
	assert.Equal(t, 1, index)
	assert.Equal(t, profile.Type(p.s), value)
}

func TestDefaultOracleSkipsReceiver(t *testing.T) {
	p := newProgram()
	demo := p.rt.Types.Define("Demo", model.KindReference, nil)
	mp := profile.NewMethodProfile(p.visit, profile.CandidatesAll)
	record(mp, 4, typeV(demo), intV(1), intV(2))
	record(mp, 1, typeV(demo), intV(3), intV(4))

	d := DefaultOracle{MaxOptLevel: 2}.ShouldSpecialize(p.visit, mp, plan2)
	require.True(t, d.Yes)
	index, value, _ := d.Context.Fixed()
	assert.Equal(t, 0, index, "declared index, receiver excluded")
	assert.Equal(t, profile.Int(1), value)
	assert.Len(t, d.Context.Values, 2)
	assert.Contains(t, d.String(), " INSTANCE PRIM_PARAMS 2 REAL_OBJ_PARAMS 0 ")
}

func TestDefaultOracleRejections(t *testing.T) {
	p := newProgram()
	noParams := p.rt.Methods.Load(&model.Method{Class: "Demo", Name: "run", Descriptor: "()V", Static: true})

	d := DefaultOracle{MaxOptLevel: 2}.ShouldSpecialize(noParams, nil, CompilationPlan{OptLevel: 1})
	assert.False(t, d.Yes)
	assert.Equal(t, []string{ReasonNoProfiles, ReasonNoNonReceiverParams, ReasonOptLevelBelowTwo}, d.Reasons)
	assert.Equal(t, "NO_PROFILES NO_NON_RECEIVER_PARAMS OPT_LEVEL_SMALLER_THAN_TWO", d.Reason())

	mp := profile.NewMethodProfile(p.f, profile.CandidatesAll)
	record(mp, 3, intV(7), typeV(p.s))
	d = DefaultOracle{MaxOptLevel: 1}.ShouldSpecialize(p.f, mp, CompilationPlan{OptLevel: 0})
	assert.Equal(t, []string{ReasonOptLevelBelowMaximum}, d.Reasons)
	d = DefaultOracle{MaxOptLevel: 1}.ShouldSpecialize(p.f, mp, CompilationPlan{OptLevel: 1})
	assert.True(t, d.Yes)

	declaredOnly := profile.NewMethodProfile(p.f, profile.CandidatesTypesOnly)
	record(declaredOnly, 5, intV(7), typeV(p.t))
	d = DefaultOracle{MaxOptLevel: 2}.ShouldSpecialize(p.f, declaredOnly, plan2)
	assert.False(t, d.Yes)
	assert.Equal(t, []string{ReasonNoCandidates}, d.Reasons)
	assert.Contains(t, d.String(), " NO NO_CANDIDATES_FOUND\n")
}

func TestEagerAndNeverOracles(t *testing.T) {
	p := newProgram()
	mp := profile.NewMethodProfile(p.f, profile.CandidatesAll)
	record(mp, 2, intV(7), typeV(p.s))

	d := EagerOracle{}.ShouldSpecialize(p.f, mp, CompilationPlan{OptLevel: 0})
	assert.True(t, d.Yes)

	d = EagerOracle{}.ShouldSpecialize(p.f, nil, plan2)
	assert.False(t, d.Yes)
	assert.Equal(t, ReasonNone, d.Reason())

	d = NeverOracle{}.ShouldSpecialize(p.f, mp, plan2)
	assert.False(t, d.Yes)
	assert.Equal(t, ReasonDisabled, d.Reason())
}

func TestNewOracle(t *testing.T) {
	p := newProgram()
	for _, policy := range Policies() {
		o, err := NewOracle(policy, OracleOptions{MaxOptLevel: 2, Lookup: p.rt.Methods})
		require.NoError(t, err, policy)
		assert.NotNil(t, o)
	}
	_, err := NewOracle(PolicyFixed, OracleOptions{})
	assert.Error(t, err)

	policy, err := ParsePolicy("EAGER")
	require.NoError(t, err)
	assert.Equal(t, PolicyEager, policy)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestParseFixedTarget(t *testing.T) {
	target, err := ParseFixedTarget("java.lang.Math.max#1=long=-4")
	require.NoError(t, err)
	assert.Equal(t, FixedTarget{Class: "java.lang.Math", Method: "max", Param: 1, Value: profile.Long(-4)}, target)

	roundTrip, err := ParseFixedTarget(target.String())
	require.NoError(t, err)
	assert.Equal(t, target, roundTrip)

	for _, bad := range []string{"Demo#0=int=1", "Demo.f", "Demo.f#x=int=1", "Demo.f#0", "Demo.f#0=int=x", ".f#0=int=1"} {
		_, err := ParseFixedTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestFixedOracleWaitsForClassLoading(t *testing.T) {
	p := newProgram()
	o := NewFixedOracle([]FixedTarget{
		{Class: "Demo", Method: "f", Param: 0, Value: profile.Int(10)},
		{Class: "Later", Method: "g", Param: 0, Value: profile.Int(1)},
	}, p.rt.Methods)

	d := o.ShouldSpecialize(p.visit, nil, plan2)
	require.True(t, d.Yes)
	assert.Same(t, p.f, d.Method)
	_, value, _ := d.Context.Fixed()
	assert.Equal(t, profile.Int(10), value)

	d = o.ShouldSpecialize(p.visit, nil, plan2)
	assert.Equal(t, ReasonWaitingForClassLoading, d.Reason())

	_, ok := o.NotifyClassResolved("Elsewhere")
	assert.False(t, ok)

	g := p.rt.Methods.Load(&model.Method{Class: "Later", Name: "g", Descriptor: "(I)V", Static: true, Params: []*model.TypeRef{p.intT}})
	d, ok = o.NotifyClassResolved("Later")
	require.True(t, ok)
	assert.True(t, d.Yes)
	assert.Same(t, g, d.Method)

	d = o.ShouldSpecialize(p.visit, nil, plan2)
	assert.Equal(t, ReasonAllCandidatesCreated, d.Reason())
	assert.Equal(t, 0, o.Remaining())
}

func TestFixedOracleMissingMethod(t *testing.T) {
	p := newProgram()
	o := NewFixedOracle([]FixedTarget{{Class: "Demo", Method: "nope", Value: profile.Int(1)}}, p.rt.Methods)
	d := o.ShouldSpecialize(p.f, nil, plan2)
	assert.False(t, d.Yes)
	assert.Equal(t, ReasonTargetMethodNotFound, d.Reason())
}

func TestContextIdentityIsStructural(t *testing.T) {
	p := newProgram()
	a := FixParameter(p.f, 0, profile.Int(7))
	b := FixParameter(p.f, 0, profile.Int(7))
	assert.NotSame(t, a, b)
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(FixParameter(p.f, 0, profile.Int(8))))
	assert.False(t, a.Equal(FixParameter(p.f, 1, profile.Type(p.s))))
	assert.False(t, FixParameter(p.f, 1, profile.Null()).Equal(FixParameter(p.f, 1, profile.Type(p.s))))
	assert.False(t, FixParameter(p.f, 1, profile.Type(p.s)).Equal(FixParameter(p.f, 1, profile.Type(p.u))))

	nan := math.NaN()
	x := FixParameter(p.visit, 0, profile.Double(nan))
	assert.True(t, x.Equal(FixParameter(p.visit, 0, profile.Double(nan))))

	assert.Panics(t, func() { NewContext(p.f, make([]*profile.Descriptor, 3)) })
}

func newRegistry(p *program) (*Registry, *vmsim.Compiler) {
	c := vmsim.NewCompiler(p.rt.Methods)
	return NewRegistry(c, 2, nil), c
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)

	first := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	second := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.SpecialVersionCount(p.f))
	assert.Equal(t, 1, r.Pending())
	assert.True(t, r.ShouldCallDirectly(p.f))
	assert.False(t, r.ShouldCallDirectly(p.visit))
	assert.Equal(t, []int{first.Index}, r.DirectCallIndexes())

	other := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 1, profile.Type(p.s)))
	assert.NotSame(t, first, other)
	assert.Equal(t, []*SpecializedMethod{first, other}, r.SpecialVersions(p.f))
	assert.Equal(t, []*model.Method{p.f}, r.Methods())
}

func TestOtherVariantsAreNotCalledDirectly(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)

	scan := r.RegisterOther(FixParameter(p.visit, 1, profile.Int(0)))
	assert.False(t, scan.DirectCall)
	assert.False(t, r.ShouldCallDirectly(p.visit))
	assert.Empty(t, r.VersionsCalledFromGeneralMethod(p.visit))

	direct := r.FindOrCreateSpecializedVersion(FixParameter(p.visit, 0, profile.Int(1)))
	assert.True(t, r.ShouldCallDirectly(p.visit))
	assert.Equal(t, []*SpecializedMethod{direct}, r.VersionsCalledFromGeneralMethod(p.visit))
	assert.Equal(t, 2, r.SpecialVersionCount(p.visit))
	assert.Equal(t, []int{direct.Index}, r.DirectCallIndexes())
}

func TestDrainCompilesAndRegisters(t *testing.T) {
	p := newProgram()
	r, c := newRegistry(p)
	sm := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))

	require.NoError(t, r.DrainDeferredCompilations(context.Background()))
	require.NotNil(t, sm.Body)
	assert.Equal(t, model.CompilerOpt, sm.Body.Compiler)
	assert.Equal(t, 0, r.Pending())

	body, ok := c.Registered(sm.Index)
	require.True(t, ok)
	assert.Same(t, sm.Body, body)
	assert.Equal(t, []vm.CompileRequest{{
		SMID:     sm.Index,
		Method:   p.f,
		OptLevel: 2,
		Fixed:    []vm.FixedParameter{{Index: 0, Value: "int=7"}},
	}}, c.Requests())

	// Re-affirming a compiled variant does not queue it again.
	r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	assert.Equal(t, 0, r.Pending())
	require.NoError(t, r.DrainDeferredCompilations(context.Background()))
	assert.Len(t, c.Requests(), 1)
}

func TestDrainIsNotReentrant(t *testing.T) {
	p := newProgram()
	r, c := newRegistry(p)

	var nested []error
	c.OnCompile = func(ctx context.Context, req vm.CompileRequest) {
		nested = append(nested, r.DrainDeferredCompilations(ctx))
		r.FindOrCreateSpecializedVersion(FixParameter(req.Method, 0, profile.Int(7)))
		if req.Method == p.f {
			r.FindOrCreateSpecializedVersion(FixParameter(p.visit, 1, profile.Int(3)))
		}
	}

	first := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	require.NoError(t, r.DrainDeferredCompilations(context.Background()))

	requests := c.Requests()
	require.Len(t, requests, 3, "f, then visit#1 and visit#0 queued while compiling")
	assert.Same(t, p.f, requests[0].Method)
	assert.Same(t, p.visit, requests[1].Method)
	assert.Same(t, p.visit, requests[2].Method)
	assert.Equal(t, []error{nil, nil, nil}, nested)
	assert.NotNil(t, first.Body)
	assert.Equal(t, 0, r.Pending())
	for _, sm := range r.SpecialVersions(p.visit) {
		assert.NotNil(t, sm.Body, sm)
	}
}

func TestNonFatalCompileFailureSkipsVariant(t *testing.T) {
	p := newProgram()
	r, c := newRegistry(p)
	c.Fail(p.f, errors.New("register allocation gave up"))

	broken := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	fine := r.FindOrCreateSpecializedVersion(FixParameter(p.visit, 0, profile.Int(1)))

	require.NoError(t, r.DrainDeferredCompilations(context.Background()))
	assert.Nil(t, broken.Body)
	assert.NotNil(t, fine.Body)
	assert.Equal(t, 0, r.Pending())
}

func TestFatalCompileFailureAbortsDrain(t *testing.T) {
	p := newProgram()
	r, c := newRegistry(p)
	c.Fail(p.f, &FatalCompileError{Method: p.f, Err: errors.New("out of code space")})

	broken := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))
	later := r.FindOrCreateSpecializedVersion(FixParameter(p.visit, 0, profile.Int(1)))

	err := r.DrainDeferredCompilations(context.Background())
	var fatal *FatalCompileError
	require.ErrorAs(t, err, &fatal)
	assert.Same(t, p.f, fatal.Method)
	assert.Nil(t, later.Body, "drain stopped at the fatal failure")
	assert.Equal(t, 2, r.Pending())

	c.Fail(p.f, nil)
	require.NoError(t, r.DrainDeferredCompilations(context.Background()))
	assert.NotNil(t, broken.Body)
	assert.NotNil(t, later.Body)
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)
	r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(7)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.DrainDeferredCompilations(ctx), context.Canceled)
	assert.Equal(t, 1, r.Pending())
}

func TestConcurrentFindOrCreate(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)

	var mu sync.Mutex
	seen := make(map[*SpecializedMethod]struct{})
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			for v := range int32(4) {
				sm := r.FindOrCreateSpecializedVersion(FixParameter(p.f, 0, profile.Int(v)))
				mu.Lock()
				seen[sm] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 4)
	assert.Equal(t, 4, r.SpecialVersionCount(p.f))
	assert.Len(t, r.DirectCallIndexes(), 4)
}

type fakeProfiles struct {
	profiles  map[*model.Method]*profile.MethodProfile
	discarded []*model.Method
}

func (f *fakeProfiles) Profile(m *model.Method) *profile.MethodProfile { return f.profiles[m] }

func (f *fakeProfiles) Discard(m *model.Method) {
	f.discarded = append(f.discarded, m)
	delete(f.profiles, m)
}

type optLevels map[*model.Method][]int

func (o optLevels) NotifyOptCompile(m *model.Method, level int) { o[m] = append(o[m], level) }

func TestCreatorActsOnPositiveDecisions(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)
	mp := profile.NewMethodProfile(p.f, profile.CandidatesAll)
	record(mp, 10, intV(7), typeV(p.s))
	profiles := &fakeProfiles{profiles: map[*model.Method]*profile.MethodProfile{p.f: mp}}
	levels := optLevels{}
	decisions := NewDecisionLog()

	c := NewCreator(DefaultOracle{MaxOptLevel: 2}, r, profiles, levels, decisions, nil)
	c.NotifyMethodCompile(p.f, model.CompilerBaseline)

	d := c.NotifyMethodOptCompile(p.f, CompilationPlan{OptLevel: 1})
	assert.False(t, d.Yes)
	assert.Empty(t, profiles.discarded)

	d = c.NotifyMethodOptCompile(p.f, plan2)
	require.True(t, d.Yes)
	assert.Equal(t, []*model.Method{p.f}, profiles.discarded)
	assert.Equal(t, 1, r.SpecialVersionCount(p.f))
	assert.Equal(t, []int{1, 2}, levels[p.f])

	d = c.NotifyMethodOptCompile(p.f, plan2)
	assert.Equal(t, []string{ReasonNoProfiles}, d.Reasons)
	assert.Equal(t, 3, decisions.Len())

	var buf bytes.Buffer
	n, err := decisions.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Begin of specialization decisions.\n"))
	assert.True(t, strings.HasSuffix(out, "End of specialization decisions.\n"))
	assert.Equal(t, 3, strings.Count(out, "SPEC_DECISION "))
	assert.Contains(t, out, " YES NO_REASON\n")
}

func TestCreatorForwardsClassResolution(t *testing.T) {
	p := newProgram()
	r, _ := newRegistry(p)
	profiles := &fakeProfiles{profiles: map[*model.Method]*profile.MethodProfile{}}
	o := NewFixedOracle([]FixedTarget{{Class: "Later", Method: "g", Value: profile.Int(1)}}, p.rt.Methods)
	c := NewCreator(o, r, profiles, nil, nil, nil)

	d := c.NotifyMethodOptCompile(p.f, plan2)
	assert.Equal(t, ReasonWaitingForClassLoading, d.Reason())

	g := p.rt.Methods.Load(&model.Method{Class: "Later", Name: "g", Descriptor: "(I)V", Static: true, Params: []*model.TypeRef{p.intT}})
	c.NotifyClassResolved("Later")
	assert.Equal(t, 1, r.SpecialVersionCount(g))
	assert.Equal(t, []*model.Method{g}, profiles.discarded)
}
