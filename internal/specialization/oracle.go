package specialization

import (
	"fmt"
	"math"
	"strings"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
)

// Oracle decides whether a method being opt-compiled should get a
// specialized variant. Oracles only return decisions; the caller registers
// the variant.
type Oracle interface {
	ShouldSpecialize(m *model.Method, p *profile.MethodProfile, plan CompilationPlan) Decision
}

type Policy string

const (
	PolicyDefault Policy = "default"
	PolicyNever   Policy = "never"
	PolicyEager   Policy = "eager"
	PolicyFixed   Policy = "fixed"
)

func Policies() []Policy {
	return []Policy{PolicyDefault, PolicyNever, PolicyEager, PolicyFixed}
}

func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies() {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown oracle policy %q", s)
}

type OracleOptions struct {
	MaxOptLevel int

	// Used by PolicyFixed only.
	Targets []FixedTarget
	Lookup  MethodLookup
}

func NewOracle(policy Policy, opts OracleOptions) (Oracle, error) {
	switch policy {
	case PolicyDefault, "":
		return DefaultOracle{MaxOptLevel: opts.MaxOptLevel}, nil
	case PolicyNever:
		return NeverOracle{}, nil
	case PolicyEager:
		return EagerOracle{}, nil
	case PolicyFixed:
		if opts.Lookup == nil {
			return nil, fmt.Errorf("fixed oracle needs a method lookup")
		}
		return NewFixedOracle(opts.Targets, opts.Lookup), nil
	default:
		return nil, fmt.Errorf("unknown oracle policy %q", policy)
	}
}

// DefaultOracle specializes on the single most frequent candidate across
// the declared parameters, but only for compiles at a high enough opt level.
type DefaultOracle struct {
	MaxOptLevel int
}

func (o DefaultOracle) ShouldSpecialize(m *model.Method, p *profile.MethodProfile, plan CompilationPlan) Decision {
	var reasons []string
	if p == nil {
		reasons = append(reasons, ReasonNoProfiles)
	}
	if len(m.Params) == 0 {
		reasons = append(reasons, ReasonNoNonReceiverParams)
	}
	if o.MaxOptLevel < 2 {
		if plan.OptLevel < o.MaxOptLevel {
			reasons = append(reasons, ReasonOptLevelBelowMaximum)
		}
	} else if plan.OptLevel < 2 {
		reasons = append(reasons, ReasonOptLevelBelowTwo)
	}
	if len(reasons) > 0 {
		return no(m, p, reasons...)
	}

	ctx := mostFrequentCandidate(m, p)
	if ctx == nil {
		return no(m, p, ReasonNoCandidates)
	}
	return yes(m, p, ctx)
}

// EagerOracle specializes whenever a candidate exists, whatever the opt
// level.
type EagerOracle struct{}

func (EagerOracle) ShouldSpecialize(m *model.Method, p *profile.MethodProfile, _ CompilationPlan) Decision {
	if p == nil {
		return no(m, p)
	}
	if ctx := mostFrequentCandidate(m, p); ctx != nil {
		return yes(m, p, ctx)
	}
	return no(m, p)
}

type NeverOracle struct{}

func (NeverOracle) ShouldSpecialize(m *model.Method, p *profile.MethodProfile, _ CompilationPlan) Decision {
	return no(m, p, ReasonDisabled)
}

// mostFrequentCandidate picks the top candidate with the highest count over
// all non-receiver positions. On equal counts the lower position wins.
func mostFrequentCandidate(m *model.Method, p *profile.MethodProfile) *Context {
	start := 1
	if m.Static {
		start = 0
	}

	best := -1
	bestCount := math.MinInt
	var bestValue profile.Descriptor
	for pos := start; pos < m.ParameterCount(); pos++ {
		candidates := p.CandidatesForParameter(pos)
		if len(candidates) == 0 {
			continue
		}
		if top := candidates[0]; top.Count > bestCount {
			best, bestCount, bestValue = pos, top.Count, top.Value
		}
	}
	if best < 0 {
		return nil
	}
	return FixParameter(m, best-start, bestValue)
}
