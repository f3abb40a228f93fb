// Package simulation wires the sampler, aggregator and specializer to the
// simulated VM and drives them with a multi-threaded workload.
package simulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/paramspec/internal/aggregator"
	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/specialization"
	"github.com/mabhi256/paramspec/internal/vm"
	"github.com/mabhi256/paramspec/internal/vmsim"
)

// Batches is how many rounds Run splits the workload into. Hot methods are
// recompiled between rounds.
const Batches = 4

type Pipeline struct {
	Scenario  *vmsim.Scenario
	Sampler   *sampler.Sampler
	Organizer *aggregator.Organizer
	Monitor   *aggregator.RecompilationMonitor
	Registry  *specialization.Registry
	Creator   *specialization.Creator
	Decisions *specialization.DecisionLog
	Compiler  *vmsim.Compiler

	cfg     *config.Config
	log     *slog.Logger
	runID   uuid.UUID
	started time.Time

	mu       sync.Mutex
	promoted map[*model.Method]bool
	batches  int
	fatal    error
}

func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	candidates, _ := profile.ParseCandidateType(cfg.CandidateType)
	policy, _ := specialization.ParsePolicy(cfg.OraclePolicy)

	sc := vmsim.NewScenario()
	oracle, err := specialization.NewOracle(policy, specialization.OracleOptions{
		MaxOptLevel: cfg.MaxOptLevel,
		Targets:     cfg.Targets,
		Lookup:      sc.Runtime.Methods,
	})
	if err != nil {
		return nil, fmt.Errorf("create oracle: %w", err)
	}

	p := &Pipeline{
		Scenario:  sc,
		Monitor:   aggregator.NewRecompilationMonitor(),
		Decisions: specialization.NewDecisionLog(),
		Compiler:  vmsim.NewCompiler(sc.Runtime.Methods),
		cfg:       cfg,
		runID:     uuid.New(),
		started:   time.Now(),
		promoted:  make(map[*model.Method]bool),
	}
	p.log = logger.With("run", p.runID.String())

	p.Sampler = sampler.New(sampler.Options{
		Capacity:         cfg.BufferCapacity,
		SampleCount:      cfg.SampleQuota,
		ProfileVMMethods: cfg.ProfileVMMethods,
		VerifyAssertions: cfg.VerifyAssertions,
	}, sc.Runtime.Methods, sc.Stack, sc.Heap)
	p.Organizer = aggregator.New(aggregator.Options{
		Summarized:       cfg.Summarized,
		CandidateType:    candidates,
		VerifyAssertions: cfg.VerifyAssertions,
	}, p.Sampler, sc.Heap, p.log)
	p.Sampler.SetOrganizer(p.Organizer)
	p.Sampler.Fatal = p.fail
	p.Organizer.Fatal = p.fail

	p.Registry = specialization.NewRegistry(p.Compiler, cfg.MaxOptLevel, p.log)
	// Compiling a specialized body drains the queue again, as any opt
	// compile does. The registry turns the nested call into a no-op.
	p.Compiler.OnCompile = func(ctx context.Context, _ vm.CompileRequest) {
		if err := p.Registry.DrainDeferredCompilations(ctx); err != nil {
			p.fail(err)
		}
	}
	p.Creator = specialization.NewCreator(oracle, p.Registry, p.Organizer, p.Monitor, p.Decisions, p.log)
	p.notifyCompiled(sc.Targets)
	return p, nil
}

func (p *Pipeline) RunID() string { return p.runID.String() }

func (p *Pipeline) Config() *config.Config { return p.cfg }

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fatal == nil {
		p.fatal = err
		p.log.Error("fatal condition", "error", err)
	}
}

// Err returns the first fatal condition hit so far.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

// Run performs the configured number of invocations per thread in Batches
// rounds.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("simulation started", "config", p.cfg.String())
	per := (p.cfg.Invocations + Batches - 1) / Batches
	left := p.cfg.Invocations
	for left > 0 {
		n := min(per, left)
		if err := p.RunBatch(ctx, n); err != nil {
			return err
		}
		left -= n
	}
	p.log.Info("simulation finished", "elapsed", time.Since(p.started), "variants", len(p.Registry.Methods()))
	return nil
}

// RunBatch runs invocations calls on every mutator thread while the
// organizer consumes full windows, then processes the partial window,
// recompiles methods that became hot and drains the specialization queue.
func (p *Pipeline) RunBatch(ctx context.Context, invocations int) error {
	if err := p.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	batch := p.batches
	p.batches++
	p.mu.Unlock()

	// The plugin class shows up once the program is warm.
	if batch == 1 {
		p.loadDeferredClasses()
	}

	orgCtx, stop := context.WithCancel(ctx)
	defer stop()
	var g errgroup.Group
	g.Go(func() error {
		_ = p.Organizer.Run(orgCtx)
		return nil
	})

	err := vmsim.RunMutators(ctx, p.Scenario.Stack, p.Sampler, p.Scenario.Next, vmsim.MutatorOptions{
		Threads:     p.cfg.Threads,
		Invocations: invocations,
		Seed:        p.cfg.Seed + uint64(batch),
	})
	stop()
	_ = g.Wait()
	if err != nil {
		return fmt.Errorf("batch %d: %w", batch, err)
	}

	p.Organizer.Flush()
	// Nothing sampled after a fatal condition may drive a specialization.
	if err := p.Err(); err != nil {
		return fmt.Errorf("batch %d: %w", batch, err)
	}
	if err := p.promoteHotMethods(ctx); err != nil {
		return fmt.Errorf("batch %d: %w", batch, err)
	}
	p.log.Debug("batch done", "batch", batch, "passes", p.Organizer.Passes(), "pending", p.Registry.Pending())
	return p.Err()
}

func (p *Pipeline) loadDeferredClasses() {
	n := len(p.Scenario.Targets)
	classes := p.Scenario.LoadDeferred()
	p.notifyCompiled(p.Scenario.Targets[n:])
	for _, class := range classes {
		p.log.Debug("class loaded", "class", class)
		p.Creator.NotifyClassResolved(class)
	}
}

func (p *Pipeline) notifyCompiled(targets []*vmsim.Target) {
	for _, t := range targets {
		if cm, ok := p.Scenario.Runtime.Methods.Current(t.Method.ID); ok {
			p.Creator.NotifyMethodCompile(t.Method, cm.Compiler)
		}
	}
}

func (p *Pipeline) promoteHotMethods(ctx context.Context) error {
	plan := specialization.CompilationPlan{OptLevel: p.cfg.OptLevel}
	for _, m := range p.Organizer.Methods() {
		if p.promoted[m] || p.sampleCount(m) < p.cfg.HotThreshold {
			continue
		}
		p.promoted[m] = true
		p.Compiler.OptCompile(m, plan.OptLevel)
		d := p.Creator.NotifyMethodOptCompile(m, plan)
		p.log.Debug("hot method recompiled", "method", m, "specialize", d.Yes)
	}
	return p.Registry.DrainDeferredCompilations(ctx)
}

func (p *Pipeline) sampleCount(m *model.Method) int {
	if mp := p.Organizer.Profile(m); mp != nil {
		return mp.Samples()
	}
	n := 0
	for _, pp := range p.Organizer.Samples(m) {
		n += pp.Multiplicity()
	}
	return n
}

// WriteProfiles dumps the current profiles followed by the recompilation
// report.
func (p *Pipeline) WriteProfiles(w io.Writer) error {
	if err := p.Organizer.WriteProfiles(w); err != nil {
		return err
	}
	for _, line := range p.Monitor.Report() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write recompilation report: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) WriteDecisions(w io.Writer) error {
	_, err := p.Decisions.WriteTo(w)
	return err
}
