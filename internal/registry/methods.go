package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mabhi256/paramspec/internal/model"
)

type methodKey struct {
	class string
	name  string
}

// MethodRegistry holds loaded methods and their compiled bodies.
type MethodRegistry struct {
	methods  *BaseRegistry[int32, *model.Method]
	byName   *BaseRegistry[methodKey, *model.Method]
	compiled *BaseRegistry[int32, *model.CompiledMethod]
	classes  *BaseRegistry[string, struct{}]

	// Currently installed compiled body per method id.
	current   map[int32]*model.CompiledMethod
	currentMu sync.RWMutex

	nextMethodID   atomic.Int32
	nextCompiledID atomic.Int32
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods:  NewBaseRegistry[int32, *model.Method](),
		byName:   NewBaseRegistry[methodKey, *model.Method](),
		compiled: NewBaseRegistry[int32, *model.CompiledMethod](),
		classes:  NewBaseRegistry[string, struct{}](),
		current:  make(map[int32]*model.CompiledMethod),
	}
}

// Load assigns an id to m and makes it findable by class and name. The
// first method loaded under a class and name wins name lookups.
func (mr *MethodRegistry) Load(m *model.Method) *model.Method {
	m.ID = mr.nextMethodID.Add(1)
	mr.methods.Add(m.ID, m)
	mr.byName.AddIfAbsent(methodKey{m.Class, m.Name}, m)
	mr.classes.AddIfAbsent(m.Class, struct{}{})
	return m
}

// HasClass reports whether any method of class has been loaded.
func (mr *MethodRegistry) HasClass(class string) bool {
	_, ok := mr.classes.Get(class)
	return ok
}

func (mr *MethodRegistry) Method(id int32) (*model.Method, bool) {
	return mr.methods.Get(id)
}

func (mr *MethodRegistry) Lookup(class, name string) (*model.Method, bool) {
	return mr.byName.Get(methodKey{class, name})
}

// NewCompiledMethod allocates a compiled method id for m. Ids start at 1;
// zero is reserved for frames without a method.
func (mr *MethodRegistry) NewCompiledMethod(m *model.Method, compiler model.CompilerKind, optLevel int) *model.CompiledMethod {
	cm := &model.CompiledMethod{
		ID:       mr.nextCompiledID.Add(1),
		Method:   m,
		Compiler: compiler,
		OptLevel: optLevel,
	}
	mr.compiled.Add(cm.ID, cm)
	return cm
}

func (mr *MethodRegistry) CompiledMethod(id int32) (*model.CompiledMethod, bool) {
	return mr.compiled.Get(id)
}

// Install makes cm the active body of its method and marks the previous one
// outdated.
func (mr *MethodRegistry) Install(cm *model.CompiledMethod) {
	mr.currentMu.Lock()
	defer mr.currentMu.Unlock()
	if prev, ok := mr.current[cm.Method.ID]; ok && prev != cm {
		prev.MarkOutdated()
	}
	mr.current[cm.Method.ID] = cm
}

func (mr *MethodRegistry) Current(methodID int32) (*model.CompiledMethod, bool) {
	mr.currentMu.RLock()
	defer mr.currentMu.RUnlock()
	cm, ok := mr.current[methodID]
	return cm, ok
}

func (mr *MethodRegistry) MethodCount() int {
	return mr.methods.Count()
}

func (mr *MethodRegistry) CompiledCount() int {
	return mr.compiled.Count()
}

// Methods returns all loaded methods in load order.
func (mr *MethodRegistry) Methods() []*model.Method {
	all := mr.methods.GetAll()
	methods := make([]*model.Method, 0, len(all))
	for _, m := range all {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool {
		return methods[i].ID < methods[j].ID
	})
	return methods
}
