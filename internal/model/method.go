package model

import (
	"fmt"
	"strings"
	"sync/atomic"
)

type MethodFlag uint32

const (
	FlagClassInitializer MethodFlag = 1 << iota
	// Dynamic bridge to another calling convention.
	FlagBridge
	FlagBridgeFromNative
	FlagNoOptCompile
	FlagUninterruptible
	FlagUnpreemptible
	FlagLogicallyUninterruptible
	FlagMakesCallStackAssumptions
	FlagSpecializedInvoke
	FlagSysCall
	FlagRuntimeService
	FlagVMInternal

	// Set on the declaring class, copied onto each method when it is loaded.
	FlagClassMakesCallStackAssumptions
	FlagClassUninterruptibleNoWarn
	FlagClassUnpreemptibleNoWarn
)

// Method is the normal (source-level) method a compiled body belongs to.
type Method struct {
	ID         int32
	Class      string
	Name       string
	Descriptor string
	Static     bool
	Params     []*TypeRef
	Return     *TypeRef
	Flags      MethodFlag
}

func (m *Method) Has(f MethodFlag) bool {
	return m.Flags&f != 0
}

// ParameterCount returns the number of profiled positions, counting the
// implicit receiver of an instance method.
func (m *Method) ParameterCount() int {
	if m.Static {
		return len(m.Params)
	}
	return len(m.Params) + 1
}

// PositionType returns the declared type at a profile position. Position 0 of
// an instance method is the receiver, which has no declared parameter type.
func (m *Method) PositionType(pos int) *TypeRef {
	if !m.Static {
		pos--
	}
	if pos < 0 || pos >= len(m.Params) {
		return nil
	}
	return m.Params[pos]
}

// UsesUnboxedTypes reports raw machine words, code pointers or unboxed
// values in the signature. Their frame layout is not supported.
func (m *Method) UsesUnboxedTypes() bool {
	if m.Return != nil && m.Return.Kind.unboxed() {
		return true
	}
	for _, p := range m.Params {
		if p.Kind.unboxed() {
			return true
		}
	}
	return false
}

// Uninteresting methods are run once or belong to the runtime's plumbing.
func (m *Method) Uninteresting() bool {
	return m.Has(FlagClassInitializer | FlagBridgeFromNative | FlagSysCall | FlagRuntimeService)
}

func (m *Method) ImpossibleToSpecialize() bool {
	return m.Has(FlagBridge | FlagBridgeFromNative | FlagNoOptCompile)
}

func (m *Method) UnsafeToSpecialize() bool {
	return m.Has(FlagUninterruptible | FlagUnpreemptible | FlagLogicallyUninterruptible |
		FlagMakesCallStackAssumptions | FlagClassMakesCallStackAssumptions |
		FlagSpecializedInvoke | FlagClassUninterruptibleNoWarn | FlagClassUnpreemptibleNoWarn)
}

// EncodedSize returns the number of sample-buffer bytes one invocation needs.
func (m *Method) EncodedSize() int {
	size := 0
	if !m.Static {
		size += KindReference.Size()
	}
	for _, p := range m.Params {
		size += p.Kind.Size()
	}
	return size
}

func (m *Method) String() string {
	return fmt.Sprintf("%s.%s%s", m.Class, m.Name, m.Descriptor)
}

// Signature renders the descriptor from the parameter types when none was
// given at load time.
func (m *Method) Signature() string {
	if m.Descriptor != "" {
		return m.Descriptor
	}
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.Name
	}
	ret := "void"
	if m.Return != nil {
		ret = m.Return.Name
	}
	return "(" + strings.Join(names, ",") + ")" + ret
}

type CompilerKind byte

const (
	CompilerBaseline CompilerKind = iota
	CompilerOpt
	CompilerJNI
	CompilerTrap
)

func (c CompilerKind) String() string {
	switch c {
	case CompilerBaseline:
		return "baseline"
	case CompilerOpt:
		return "opt"
	case CompilerJNI:
		return "jni"
	case CompilerTrap:
		return "trap"
	default:
		return fmt.Sprintf("CompilerKind(%d)", byte(c))
	}
}

// CompiledMethod is one compiled body of a Method. Outdated and invalid
// state is read by sampling threads while the compiler thread changes it.
type CompiledMethod struct {
	ID       int32
	Method   *Method
	Compiler CompilerKind
	OptLevel int

	outdated atomic.Bool
	invalid  atomic.Bool
}

func (c *CompiledMethod) MarkOutdated()    { c.outdated.Store(true) }
func (c *CompiledMethod) MarkInvalid()     { c.invalid.Store(true) }
func (c *CompiledMethod) IsOutdated() bool { return c.outdated.Load() }
func (c *CompiledMethod) IsInvalid() bool  { return c.invalid.Load() }

// Reason is why a yieldpoint fired.
type Reason byte

const (
	ReasonPrologue Reason = iota
	ReasonBackedge
	ReasonEpilogue
	ReasonOther
)

func (r Reason) String() string {
	switch r {
	case ReasonPrologue:
		return "prologue"
	case ReasonBackedge:
		return "backedge"
	case ReasonEpilogue:
		return "epilogue"
	default:
		return "other"
	}
}
