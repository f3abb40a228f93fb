package specialization

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/vm"
)

// ErrCompileFailed marks a compile failure that only loses one variant.
var ErrCompileFailed = errors.New("specialized compile failed")

// FatalCompileError aborts draining. The variant stays queued.
type FatalCompileError struct {
	Method *model.Method
	Err    error
}

func (e *FatalCompileError) Error() string {
	return fmt.Sprintf("fatal compile error in %s: %v", e.Method, e.Err)
}

func (e *FatalCompileError) Unwrap() error { return e.Err }

// SpecializedMethod is one specialized variant of Source. Body stays nil
// until the variant is compiled by DrainDeferredCompilations.
type SpecializedMethod struct {
	Index   int
	Source  *model.Method
	Context *Context
	Body    *model.CompiledMethod

	// DirectCall variants are dispatched to from the general body of Source.
	DirectCall bool
}

func (sm *SpecializedMethod) String() string {
	return fmt.Sprintf("SpecializedMethod #%d of %s", sm.Index, sm.Source)
}

// Registry owns every specialized variant and the queue of variants waiting
// for compilation. All state is guarded by one mutex; compiles run outside
// of it.
type Registry struct {
	code     vm.CodeManager
	optLevel int
	log      *slog.Logger

	mu       sync.Mutex
	versions map[*model.Method][]*SpecializedMethod
	direct   map[*model.Method]map[string]struct{}
	smids    []int
	deferred []*SpecializedMethod
	queued   map[*SpecializedMethod]struct{}
	nextSMID int
	draining bool
}

// NewRegistry compiles variants through code at optLevel.
func NewRegistry(code vm.CodeManager, optLevel int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Registry{code: code, optLevel: optLevel, log: logger.With("component", "specialization")}
	r.Reset()
	return r
}

// Reset drops every variant. Meant for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = make(map[*model.Method][]*SpecializedMethod)
	r.direct = make(map[*model.Method]map[string]struct{})
	r.queued = make(map[*SpecializedMethod]struct{})
	r.smids = nil
	r.deferred = nil
	r.nextSMID = 0
	r.draining = false
}

// FindOrCreateSpecializedVersion returns the variant for ctx, creating it if
// no variant with a structurally equal context exists. Either way the
// variant is (re)registered and queued unless it is already compiled.
func (r *Registry) FindOrCreateSpecializedVersion(ctx *Context) *SpecializedMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	sm := r.find(ctx)
	if sm == nil {
		sm = r.create(ctx, true)
		r.log.Debug("specialized version created", "method", ctx.Method, "smid", sm.Index)
	}
	r.registerSpecialVersion(sm)
	return sm
}

// RegisterOther records a variant produced for a different calling
// mechanism. It is compiled like any other but never called directly from
// the general body.
func (r *Registry) RegisterOther(ctx *Context) *SpecializedMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	sm := r.find(ctx)
	if sm == nil {
		sm = r.create(ctx, false)
	}
	r.registerSpecialVersion(sm)
	return sm
}

func (r *Registry) find(ctx *Context) *SpecializedMethod {
	key := ctx.Key()
	for _, sm := range r.versions[ctx.Method] {
		if sm.Context.Key() == key {
			return sm
		}
	}
	return nil
}

func (r *Registry) create(ctx *Context, direct bool) *SpecializedMethod {
	sm := &SpecializedMethod{Index: r.nextSMID, Source: ctx.Method, Context: ctx, DirectCall: direct}
	r.nextSMID++
	if direct {
		contexts, ok := r.direct[ctx.Method]
		if !ok {
			contexts = make(map[string]struct{})
			r.direct[ctx.Method] = contexts
		}
		contexts[ctx.Key()] = struct{}{}
		r.smids = append(r.smids, sm.Index)
	}
	return sm
}

func (r *Registry) registerSpecialVersion(sm *SpecializedMethod) {
	found := false
	for _, existing := range r.versions[sm.Source] {
		if existing == sm {
			found = true
			break
		}
	}
	if !found {
		r.versions[sm.Source] = append(r.versions[sm.Source], sm)
	}
	if sm.Body != nil {
		return
	}
	if _, ok := r.queued[sm]; !ok {
		r.queued[sm] = struct{}{}
		r.deferred = append(r.deferred, sm)
	}
}

// DrainDeferredCompilations compiles every queued variant and registers its
// body with the code manager. Variants queued while draining are compiled
// by the same drain. A call made while a drain is in progress, including
// one made from inside a compile, returns immediately.
//
// Variants whose compile fails with anything but a FatalCompileError are
// dropped and logged.
func (r *Registry) DrainDeferredCompilations(ctx context.Context) error {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return nil
	}
	r.draining = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.draining = false
		r.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm, ok := r.peekDeferred()
		if !ok {
			return nil
		}
		if err := r.compile(ctx, sm); err != nil {
			var fatal *FatalCompileError
			if errors.As(err, &fatal) {
				return fmt.Errorf("drain deferred compilations: %w", err)
			}
			r.log.Warn("specialized compile failed, skipping variant", "method", sm.Source, "smid", sm.Index, "error", err)
		}
		r.dequeue(sm)
	}
}

func (r *Registry) peekDeferred() (*SpecializedMethod, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deferred) == 0 {
		return nil, false
	}
	return r.deferred[0], true
}

func (r *Registry) dequeue(sm *SpecializedMethod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, queued := range r.deferred {
		if queued == sm {
			r.deferred = append(r.deferred[:i], r.deferred[i+1:]...)
			break
		}
	}
	delete(r.queued, sm)
}

func (r *Registry) compile(ctx context.Context, sm *SpecializedMethod) error {
	r.mu.Lock()
	compiled := sm.Body != nil
	r.mu.Unlock()
	if compiled {
		return nil
	}

	req := vm.CompileRequest{
		SMID:     sm.Index,
		Method:   sm.Source,
		OptLevel: r.optLevel,
		Fixed:    sm.Context.assumptions(),
	}
	body, err := r.code.CompileSpecialized(ctx, req)
	if err != nil {
		var fatal *FatalCompileError
		if errors.As(err, &fatal) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrCompileFailed, sm, err)
	}

	r.mu.Lock()
	sm.Body = body
	r.mu.Unlock()
	r.code.RegisterSpecialized(sm.Index, body)
	r.log.Debug("specialized version compiled", "method", sm.Source, "smid", sm.Index)
	return nil
}

// SpecialVersions returns the variants of m in creation order.
func (r *Registry) SpecialVersions(m *model.Method) []*SpecializedMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*SpecializedMethod(nil), r.versions[m]...)
}

func (r *Registry) SpecialVersionCount(m *model.Method) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.versions[m])
}

// VersionsCalledFromGeneralMethod returns the variants of m the general
// body must test for and call directly.
func (r *Registry) VersionsCalledFromGeneralMethod(m *model.Method) []*SpecializedMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	contexts := r.direct[m]
	var out []*SpecializedMethod
	for _, sm := range r.versions[m] {
		if _, ok := contexts[sm.Context.Key()]; ok {
			out = append(out, sm)
		}
	}
	return out
}

func (r *Registry) ShouldCallDirectly(m *model.Method) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.direct[m]) > 0
}

// DirectCallIndexes lists the indexes of all direct-call variants in
// creation order.
func (r *Registry) DirectCallIndexes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.smids...)
}

// Pending is the number of variants waiting for compilation.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deferred)
}

// Methods returns every method with at least one variant.
func (r *Registry) Methods() []*model.Method {
	r.mu.Lock()
	defer r.mu.Unlock()
	methods := make([]*model.Method, 0, len(r.versions))
	for m := range r.versions {
		methods = append(methods, m)
	}
	slices.SortFunc(methods, func(a, b *model.Method) int { return cmp.Compare(a.ID, b.ID) })
	return methods
}
