package specialization

import (
	"io"
	"log/slog"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
)

// ProfileSource hands out the profile of a method and forgets it once a
// specialization has been acted on.
type ProfileSource interface {
	Profile(m *model.Method) *profile.MethodProfile
	Discard(m *model.Method)
}

// CompileMonitor observes optimizing compiles.
type CompileMonitor interface {
	NotifyOptCompile(m *model.Method, optLevel int)
}

// Creator reacts to optimizing compiles: it asks the oracle, registers the
// variant on a positive decision and drops the profile that led to it.
type Creator struct {
	oracle   Oracle
	registry *Registry
	profiles ProfileSource
	monitor  CompileMonitor
	decided  *DecisionLog
	log      *slog.Logger
}

// NewCreator wires the creator. monitor and decisions may be nil.
func NewCreator(oracle Oracle, registry *Registry, profiles ProfileSource, monitor CompileMonitor, decisions *DecisionLog, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Creator{
		oracle:   oracle,
		registry: registry,
		profiles: profiles,
		monitor:  monitor,
		decided:  decisions,
		log:      logger.With("component", "creator"),
	}
}

// NotifyMethodCompile is called for every non-optimizing compile. Nothing
// is decided there.
func (c *Creator) NotifyMethodCompile(m *model.Method, compiler model.CompilerKind) {
	c.log.Debug("method compiled", "method", m, "compiler", compiler)
}

func (c *Creator) NotifyMethodOptCompile(m *model.Method, plan CompilationPlan) Decision {
	if c.monitor != nil {
		c.monitor.NotifyOptCompile(m, plan.OptLevel)
	}

	d := c.oracle.ShouldSpecialize(m, c.profiles.Profile(m), plan)
	c.record(d)
	if d.Yes {
		c.act(d)
	}
	return d
}

// NotifyClassResolved forwards class loading to oracles waiting for it.
func (c *Creator) NotifyClassResolved(class string) {
	monitor, ok := c.oracle.(ClassResolvedMonitor)
	if !ok {
		return
	}
	d, ok := monitor.NotifyClassResolved(class)
	if !ok {
		return
	}
	c.record(d)
	if d.Yes {
		c.act(d)
	}
}

func (c *Creator) record(d Decision) {
	if c.decided != nil {
		c.decided.Add(d)
	}
	if d.Yes {
		c.log.Info("specializing", "method", d.Method, "context", d.Context)
	} else {
		c.log.Debug("not specializing", "method", d.Method, "reason", d.Reason())
	}
}

func (c *Creator) act(d Decision) {
	c.registry.FindOrCreateSpecializedVersion(d.Context)
	c.profiles.Discard(d.Method)
}
