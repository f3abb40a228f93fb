package registry

import (
	"maps"
	"sync"
)

// Statistics summarizes the runtime registries for reports.
type Statistics struct {
	Types           int
	Methods         int
	CompiledMethods int
}

// BaseRegistry is a thread-safe key-value registry.
type BaseRegistry[K comparable, V any] struct {
	data map[K]V
	mu   sync.RWMutex
}

func NewBaseRegistry[K comparable, V any]() *BaseRegistry[K, V] {
	return &BaseRegistry[K, V]{
		data: make(map[K]V),
	}
}

// Add stores value under key, replacing any previous entry.
func (r *BaseRegistry[K, V]) Add(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
}

// AddIfAbsent stores value unless key is taken and returns the stored value.
func (r *BaseRegistry[K, V]) AddIfAbsent(key K, value V) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.data[key]; ok {
		return existing, false
	}
	r.data[key] = value
	return value, true
}

func (r *BaseRegistry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, exists := r.data[key]
	return value, exists
}

// GetAll returns a copy of all entries.
func (r *BaseRegistry[K, V]) GetAll() map[K]V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[K]V, len(r.data))
	maps.Copy(result, r.data)
	return result
}

func (r *BaseRegistry[K, V]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Runtime bundles the registries a simulated VM needs.
type Runtime struct {
	Types   *TypeRegistry
	Methods *MethodRegistry
}

func NewRuntime() *Runtime {
	return &Runtime{
		Types:   NewTypeRegistry(),
		Methods: NewMethodRegistry(),
	}
}

func (r *Runtime) GetOverallStatistics() Statistics {
	return Statistics{
		Types:           r.Types.Count(),
		Methods:         r.Methods.MethodCount(),
		CompiledMethods: r.Methods.CompiledCount(),
	}
}
