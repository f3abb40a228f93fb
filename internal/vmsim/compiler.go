package vmsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/registry"
	"github.com/mabhi256/paramspec/internal/vm"
)

// Compiler is a stand-in optimizing compiler. It produces empty compiled
// bodies and records what it was asked to do. Failures can be injected per
// method.
type Compiler struct {
	methods *registry.MethodRegistry

	// OnCompile runs at the start of every specialized compile, before the
	// body exists. Tests use it to re-enter the specializer.
	OnCompile func(ctx context.Context, req vm.CompileRequest)

	mu         sync.Mutex
	failures   map[*model.Method]error
	requests   []vm.CompileRequest
	registered map[int]*model.CompiledMethod
}

func NewCompiler(methods *registry.MethodRegistry) *Compiler {
	return &Compiler{
		methods:    methods,
		failures:   make(map[*model.Method]error),
		registered: make(map[int]*model.CompiledMethod),
	}
}

// Fail makes every specialized compile of m return err. A nil err clears
// the failure.
func (c *Compiler) Fail(m *model.Method, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, m)
		return
	}
	c.failures[m] = err
}

func (c *Compiler) CompileSpecialized(ctx context.Context, req vm.CompileRequest) (*model.CompiledMethod, error) {
	if c.OnCompile != nil {
		c.OnCompile(ctx, req)
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	err := c.failures[req.Method]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if req.Method.Has(model.FlagNoOptCompile) {
		return nil, fmt.Errorf("%s may not be opt compiled", req.Method)
	}

	cm := c.methods.NewCompiledMethod(req.Method, model.CompilerOpt, req.OptLevel)
	return cm, nil
}

func (c *Compiler) RegisterSpecialized(smid int, body *model.CompiledMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[smid] = body
}

// OptCompile recompiles the general body of m at optLevel and installs it.
// Later invocations run the optimized body.
func (c *Compiler) OptCompile(m *model.Method, optLevel int) *model.CompiledMethod {
	cm := c.methods.NewCompiledMethod(m, model.CompilerOpt, optLevel)
	c.methods.Install(cm)
	return cm
}

// Requests returns every specialized compile request seen, in order.
func (c *Compiler) Requests() []vm.CompileRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]vm.CompileRequest(nil), c.requests...)
}

// Registered returns the body registered for smid.
func (c *Compiler) Registered(smid int) (*model.CompiledMethod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cm, ok := c.registered[smid]
	return cm, ok
}

var _ vm.CodeManager = (*Compiler)(nil)
