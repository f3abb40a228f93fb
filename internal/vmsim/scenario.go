package vmsim

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/registry"
	"github.com/mabhi256/paramspec/internal/vm"
)

// Target is a method the demo workload calls, with a weight and an argument
// generator.
type Target struct {
	Method    *model.Method
	Weight    int
	Backedges int
	args      func(rng *rand.Rand) (vm.ObjectRef, []Value)
}

// Scenario is a small loaded program: a handful of classes and methods with
// skewed argument distributions, plus methods the sampler has to reject.
type Scenario struct {
	Runtime *registry.Runtime
	Heap    *Heap
	Stack   *Stack
	Targets []*Target

	deferred    []*Target
	totalWeight int
}

// Well-known names in the demo program.
const (
	DemoClass = "Demo"
	TypeT     = "T"
	TypeS     = "S"
	TypeU     = "U"

	// PluginClass is only loaded by LoadDeferred.
	PluginClass = "Plugin"
)

func NewScenario() *Scenario {
	rt := registry.NewRuntime()
	types := rt.Types
	heap := NewHeap(types)

	intT := types.Primitive(model.KindInt)
	longT := types.Primitive(model.KindLong)
	doubleT := types.Primitive(model.KindDouble)
	boolT := types.Primitive(model.KindBoolean)
	object := types.Define("Object", model.KindReference, nil)
	str := types.Define("String", model.KindReference, object)
	demo := types.Define(DemoClass, model.KindReference, object)
	t := types.Define(TypeT, model.KindReference, object)
	sType := types.Define(TypeS, model.KindReference, t)
	uType := types.Define(TypeU, model.KindReference, t)
	types.DefineArray(intT)

	demoObj := heap.Alloc(demo)
	sObj := heap.Alloc(sType)
	uObj := heap.Alloc(uType)
	strObj := heap.Alloc(str)

	sc := &Scenario{Runtime: rt, Heap: heap, Stack: NewStack()}

	sc.add(&Target{
		Method: &model.Method{Class: DemoClass, Name: "f", Descriptor: "(ILT;)V", Static: true, Params: []*model.TypeRef{intT, t}},
		Weight: 4,
		args: func(*rand.Rand) (vm.ObjectRef, []Value) {
			return 0, []Value{Int(7), Obj(sObj)}
		},
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method: &model.Method{Class: DemoClass, Name: "scale", Descriptor: "(DI)D", Params: []*model.TypeRef{doubleT, intT}, Return: doubleT},
		Weight: 3,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			factor := 1.5
			switch n := rng.IntN(100); {
			case n < 5:
				factor = math.NaN()
			case n < 30:
				factor = 2.0
			}
			return demoObj, []Value{Double(factor), Int(int32(rng.IntN(4)))}
		},
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method: &model.Method{Class: DemoClass, Name: "lookup", Descriptor: "(LString;Z)LT;", Static: true, Params: []*model.TypeRef{str, boolT}, Return: t},
		Weight: 2,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			key := strObj
			if rng.IntN(20) == 0 {
				key = 0
			}
			return 0, []Value{Obj(key), Bool(rng.IntN(10) != 0)}
		},
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method: &model.Method{Class: DemoClass, Name: "visit", Descriptor: "(LT;)V", Params: []*model.TypeRef{t}},
		Weight: 2,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			if rng.IntN(2) == 0 {
				return demoObj, []Value{Obj(sObj)}
			}
			return demoObj, []Value{Obj(uObj)}
		},
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method: &model.Method{Class: DemoClass, Name: "<clinit>", Descriptor: "()V", Static: true, Flags: model.FlagClassInitializer},
		Weight: 1,
		args:   noArgs,
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method: &model.Method{Class: "Runtime", Name: "collect", Descriptor: "(J)V", Static: true, Params: []*model.TypeRef{longT}, Flags: model.FlagVMInternal},
		Weight: 1,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			return 0, []Value{Long(rng.Int64())}
		},
	}, model.CompilerBaseline)

	sc.add(&Target{
		Method:    &model.Method{Class: DemoClass, Name: "loop", Descriptor: "(J)J", Static: true, Params: []*model.TypeRef{longT}, Return: longT},
		Weight:    1,
		Backedges: 3,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			return 0, []Value{Long(int64(rng.IntN(1000)))}
		},
	}, model.CompilerOpt)

	sc.add(&Target{
		Method: &model.Method{Class: "Native", Name: "read", Descriptor: "(I)I", Static: true, Params: []*model.TypeRef{intT}, Return: intT},
		Weight: 1,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			return 0, []Value{Int(int32(rng.IntN(3)))}
		},
	}, model.CompilerJNI)

	sc.deferred = append(sc.deferred, &Target{
		Method: &model.Method{Class: PluginClass, Name: "apply", Descriptor: "(I)I", Static: true, Params: []*model.TypeRef{intT}, Return: intT},
		Weight: 2,
		args: func(rng *rand.Rand) (vm.ObjectRef, []Value) {
			return 0, []Value{Int(int32(rng.IntN(2)))}
		},
	})

	return sc
}

// LoadDeferred loads the classes held back by NewScenario and returns their
// names. It must not run concurrently with Next.
func (sc *Scenario) LoadDeferred() []string {
	var classes []string
	for _, t := range sc.deferred {
		sc.add(t, model.CompilerBaseline)
		if !slices.Contains(classes, t.Method.Class) {
			classes = append(classes, t.Method.Class)
		}
	}
	sc.deferred = nil
	return classes
}

func noArgs(*rand.Rand) (vm.ObjectRef, []Value) { return 0, nil }

func (sc *Scenario) add(t *Target, compiler model.CompilerKind) {
	methods := sc.Runtime.Methods
	methods.Load(t.Method)
	optLevel := -1
	if compiler == model.CompilerOpt {
		optLevel = 2
	}
	methods.Install(methods.NewCompiledMethod(t.Method, compiler, optLevel))
	sc.Targets = append(sc.Targets, t)
	sc.totalWeight += t.Weight
}

// Target returns the target for a method name.
func (sc *Scenario) Target(name string) *Target {
	for _, t := range sc.Targets {
		if t.Method.Name == name {
			return t
		}
	}
	return nil
}

// Next picks a target by weight and builds a call against its currently
// installed compiled body.
func (sc *Scenario) Next(rng *rand.Rand) Call {
	pick := rng.IntN(sc.totalWeight)
	target := sc.Targets[len(sc.Targets)-1]
	for _, t := range sc.Targets {
		if pick < t.Weight {
			target = t
			break
		}
		pick -= t.Weight
	}
	return sc.CallTo(target, rng)
}

func (sc *Scenario) CallTo(t *Target, rng *rand.Rand) Call {
	cm, _ := sc.Runtime.Methods.Current(t.Method.ID)
	receiver, args := t.args(rng)
	return Call{Method: cm, Receiver: receiver, Args: args, Backedges: t.Backedges}
}
