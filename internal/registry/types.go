package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/mabhi256/paramspec/internal/model"
)

// TypeRegistry hands out stable type ids and resolves them back. Ids start at
// 1 so that zero and negative values never name a type.
type TypeRegistry struct {
	byID   *BaseRegistry[int32, *model.TypeRef]
	byName *BaseRegistry[string, *model.TypeRef]
	nextID atomic.Int32
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byID:   NewBaseRegistry[int32, *model.TypeRef](),
		byName: NewBaseRegistry[string, *model.TypeRef](),
	}
}

// Define registers a type by name. Defining an existing name returns the
// already registered type.
func (tr *TypeRegistry) Define(name string, kind model.TypeKind, super *model.TypeRef) *model.TypeRef {
	return tr.define(name, kind, super, false)
}

func (tr *TypeRegistry) define(name string, kind model.TypeKind, super *model.TypeRef, array bool) *model.TypeRef {
	if t, ok := tr.byName.Get(name); ok {
		return t
	}
	candidate := &model.TypeRef{Name: name, Kind: kind, Super: super, Array: array}
	candidate.ID = tr.nextID.Add(1)
	t, added := tr.byName.AddIfAbsent(name, candidate)
	if added {
		tr.byID.Add(t.ID, t)
	}
	return t
}

// DefineArray registers an array type of the given element type.
func (tr *TypeRegistry) DefineArray(elem *model.TypeRef) *model.TypeRef {
	return tr.define(elem.Name+"[]", model.KindReference, nil, true)
}

// Primitive returns the canonical type for a primitive or word kind.
func (tr *TypeRegistry) Primitive(kind model.TypeKind) *model.TypeRef {
	return tr.Define(kind.String(), kind, nil)
}

func (tr *TypeRegistry) ResolveType(id int32) (*model.TypeRef, bool) {
	return tr.byID.Get(id)
}

func (tr *TypeRegistry) ByName(name string) (*model.TypeRef, bool) {
	return tr.byName.Get(name)
}

func (tr *TypeRegistry) MustByName(name string) *model.TypeRef {
	t, ok := tr.byName.Get(name)
	if !ok {
		panic(fmt.Sprintf("type %q is not defined", name))
	}
	return t
}

func (tr *TypeRegistry) Count() int {
	return tr.byID.Count()
}
