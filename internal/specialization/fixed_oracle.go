package specialization

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
)

// FixedTarget is a hard-coded specialization: declared parameter Param of
// Class.Method is fixed to Value.
type FixedTarget struct {
	Class  string
	Method string
	Param  int
	Value  profile.Descriptor
}

func (t FixedTarget) String() string {
	return fmt.Sprintf("%s.%s#%d=%s", t.Class, t.Method, t.Param, t.Value.Label())
}

// ParseFixedTarget reads the String form, e.g. "Demo.scale#1=int=2".
func ParseFixedTarget(s string) (FixedTarget, error) {
	method, rest, ok := strings.Cut(s, "#")
	dot := strings.LastIndex(method, ".")
	if !ok || dot <= 0 || dot == len(method)-1 {
		return FixedTarget{}, fmt.Errorf("target %q: want Class.method#param=kind=value", s)
	}
	index, value, ok := strings.Cut(rest, "=")
	if !ok {
		return FixedTarget{}, fmt.Errorf("target %q: missing value", s)
	}
	param, err := strconv.Atoi(index)
	if err != nil || param < 0 {
		return FixedTarget{}, fmt.Errorf("target %q: bad parameter index %q", s, index)
	}
	d, err := profile.ParseLabel(value)
	if err != nil {
		return FixedTarget{}, fmt.Errorf("target %q: %w", s, err)
	}
	return FixedTarget{Class: method[:dot], Method: method[dot+1:], Param: param, Value: d}, nil
}

type MethodLookup interface {
	HasClass(class string) bool
	Lookup(class, name string) (*model.Method, bool)
}

// ClassResolvedMonitor is told when a class becomes available.
type ClassResolvedMonitor interface {
	NotifyClassResolved(class string) (Decision, bool)
}

// FixedOracle hands out its targets one per decision, in order, regardless
// of the method being compiled. It is used for reproducible runs.
type FixedOracle struct {
	lookup MethodLookup

	mu      sync.Mutex
	targets []FixedTarget
	next    int
	waiting bool
}

func NewFixedOracle(targets []FixedTarget, lookup MethodLookup) *FixedOracle {
	return &FixedOracle{targets: targets, lookup: lookup}
}

func (o *FixedOracle) ShouldSpecialize(m *model.Method, p *profile.MethodProfile, _ CompilationPlan) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	if d, ok := o.pickNext(); ok {
		return d
	}
	if o.waiting {
		return no(m, p, ReasonWaitingForClassLoading)
	}
	return no(m, p, ReasonAllCandidatesCreated)
}

// NotifyClassResolved returns the pending target's decision when class is
// the one the oracle waits for.
func (o *FixedOracle) NotifyClassResolved(class string) (Decision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.next >= len(o.targets) || o.targets[o.next].Class != class {
		return Decision{}, false
	}
	o.waiting = false
	return o.pickNext()
}

// Remaining is the number of targets not yet handed out.
func (o *FixedOracle) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.targets) - o.next
}

func (o *FixedOracle) pickNext() (Decision, bool) {
	if o.next >= len(o.targets) {
		return Decision{}, false
	}
	t := o.targets[o.next]
	if !o.lookup.HasClass(t.Class) {
		o.waiting = true
		return Decision{}, false
	}
	o.waiting = false
	o.next++

	m, ok := o.lookup.Lookup(t.Class, t.Method)
	if !ok || t.Param < 0 || t.Param >= len(m.Params) {
		target := &model.Method{Class: t.Class, Name: t.Method}
		if ok {
			target = m
		}
		return no(target, nil, ReasonTargetMethodNotFound), true
	}
	return yes(m, nil, FixParameter(m, t.Param, t.Value)), true
}
