package simulation

import (
	"time"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/registry"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/specialization"
)

// MethodData is everything the organizer holds for one method.
type MethodData struct {
	Method  *model.Method
	Profile *profile.MethodProfile
	Samples []*profile.ParameterProfile
}

// Snapshot is a copy of the pipeline state for reporting.
type Snapshot struct {
	RunID   string
	Config  string
	Elapsed time.Duration
	Batches int
	Runtime registry.Statistics

	Counters          sampler.Counters
	Passes            int64
	IntegrityFailures int64

	Methods        []MethodData
	Decisions      []specialization.Decision
	Variants       []*specialization.SpecializedMethod
	Pending        int
	Recompilations []string
}

func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	batches := p.batches
	p.mu.Unlock()

	snap := Snapshot{
		RunID:             p.RunID(),
		Config:            p.cfg.String(),
		Elapsed:           time.Since(p.started),
		Batches:           batches,
		Runtime:           p.Scenario.Runtime.GetOverallStatistics(),
		Counters:          p.Sampler.Counters(),
		Passes:            p.Organizer.Passes(),
		IntegrityFailures: p.Organizer.IntegrityFailures(),
		Decisions:         p.Decisions.Decisions(),
		Pending:           p.Registry.Pending(),
		Recompilations:    p.Monitor.Report(),
	}
	for _, m := range p.Organizer.Methods() {
		snap.Methods = append(snap.Methods, MethodData{
			Method:  m,
			Profile: p.Organizer.Profile(m),
			Samples: p.Organizer.Samples(m),
		})
	}
	for _, m := range p.Registry.Methods() {
		snap.Variants = append(snap.Variants, p.Registry.SpecialVersions(m)...)
	}
	return snap
}

// Specialized counts the variants that have a compiled body.
func (s Snapshot) Specialized() int {
	n := 0
	for _, v := range s.Variants {
		if v.Body != nil {
			n++
		}
	}
	return n
}
