// Package vmsim is an in-process stand-in for the runtime: a heap of typed
// objects, baseline frames laid out in byte slices, and mutator threads that
// hit yieldpoints.
package vmsim

import (
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/registry"
	"github.com/mabhi256/paramspec/internal/vm"
)

// Heap maps object references to their exact types. It also resolves type
// ids through the embedded type registry, so it satisfies vm.TypeResolver.
type Heap struct {
	*registry.TypeRegistry

	mu      sync.RWMutex
	objects map[vm.ObjectRef]*model.TypeRef
	next    vm.ObjectRef
}

func NewHeap(types *registry.TypeRegistry) *Heap {
	return &Heap{
		TypeRegistry: types,
		objects:      make(map[vm.ObjectRef]*model.TypeRef),
	}
}

// Alloc creates an object of type t.
func (h *Heap) Alloc(t *model.TypeRef) vm.ObjectRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next += 16
	h.objects[h.next] = t
	return h.next
}

func (h *Heap) TypeOf(obj vm.ObjectRef) *model.TypeRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.objects[obj]
}

