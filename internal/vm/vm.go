// Package vm declares the runtime capabilities the specialization pipeline
// consumes. Everything that touches raw frames or object headers sits behind
// these interfaces.
package vm

import (
	"context"

	"github.com/mabhi256/paramspec/internal/model"
)

// FramePointer identifies a stack frame.
type FramePointer uintptr

// ObjectRef is an opaque object reference. The zero value is the null
// reference.
type ObjectRef uintptr

// SlotSize is the width of one baseline local variable slot in bytes.
const SlotSize = 8

// InvisibleMethodID is returned for frames that carry no compiled method.
const InvisibleMethodID int32 = 0

// FrameAccessor reads a baseline frame. Offsets are relative to the frame
// pointer; local slot k lives at LocalsOffset(fp) + k*SlotSize. Sub-word
// primitives (boolean, byte, char, short) are stored widened to an int.
type FrameAccessor interface {
	CompiledMethodID(fp FramePointer) int32
	IsStackEnd(fp FramePointer) bool
	LocalsOffset(fp FramePointer) int

	LoadInt(fp FramePointer, offset int) int32
	LoadLong(fp FramePointer, offset int) int64
	LoadFloat(fp FramePointer, offset int) float32
	LoadDouble(fp FramePointer, offset int) float64
	LoadObject(fp FramePointer, offset int) ObjectRef
}

// CompiledMethodTable maps compiled method ids found in frames back to their
// compiled bodies.
type CompiledMethodTable interface {
	CompiledMethod(id int32) (*model.CompiledMethod, bool)
}

// TypeResolver is the type metadata capability.
type TypeResolver interface {
	// TypeOf returns the exact runtime type of a non-null object.
	TypeOf(obj ObjectRef) *model.TypeRef
	// ResolveType maps a type id back to a resolved type.
	ResolveType(id int32) (*model.TypeRef, bool)
}

// FixedParameter is one compile-time assumption of a specialized body:
// declared parameter Index (receiver excluded) always holds Value.
type FixedParameter struct {
	Index int
	Value string
}

// CompileRequest asks for a specialized body of Method.
type CompileRequest struct {
	SMID     int
	Method   *model.Method
	OptLevel int
	Fixed    []FixedParameter
}

// CodeManager is the code management capability: it compiles specialized
// bodies and makes them reachable for dispatch.
type CodeManager interface {
	CompileSpecialized(ctx context.Context, req CompileRequest) (*model.CompiledMethod, error)
	RegisterSpecialized(smid int, body *model.CompiledMethod)
}
