package vmsim

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/vm"
)

// Value is one argument as the caller pushes it.
type Value struct {
	bits uint64
	obj  vm.ObjectRef
}

func Bool(v bool) Value {
	if v {
		return Value{bits: 1}
	}
	return Value{}
}

// Int covers byte, char, short and int arguments.
func Int(v int32) Value          { return Value{bits: uint64(uint32(v))} }
func Long(v int64) Value         { return Value{bits: uint64(v)} }
func Float(v float32) Value      { return Value{bits: uint64(math.Float32bits(v))} }
func Double(v float64) Value     { return Value{bits: math.Float64bits(v)} }
func Obj(ref vm.ObjectRef) Value { return Value{obj: ref} }

type frame struct {
	cmid     int32
	locals   []byte
	stackEnd bool
}

// Stack holds the live frames of all simulated threads. Frame pointers are
// unique across threads.
type Stack struct {
	mu     sync.RWMutex
	frames map[vm.FramePointer]*frame
	next   vm.FramePointer
}

func NewStack() *Stack {
	return &Stack{frames: make(map[vm.FramePointer]*frame)}
}

// Push lays out a baseline frame for cm: the receiver (if any) in slot 0,
// then each argument, with long and double taking two slots.
func (s *Stack) Push(cm *model.CompiledMethod, receiver vm.ObjectRef, args ...Value) vm.FramePointer {
	return s.push(cm, false, receiver, args)
}

// PushStackEnd pushes a frame that claims to be the bottom of the stack.
func (s *Stack) PushStackEnd(cm *model.CompiledMethod, receiver vm.ObjectRef, args ...Value) vm.FramePointer {
	return s.push(cm, true, receiver, args)
}

// PushInvisible pushes a frame that carries no compiled method.
func (s *Stack) PushInvisible() vm.FramePointer {
	return s.add(&frame{cmid: vm.InvisibleMethodID})
}

func (s *Stack) push(cm *model.CompiledMethod, stackEnd bool, receiver vm.ObjectRef, args []Value) vm.FramePointer {
	m := cm.Method
	slots := 0
	if !m.Static {
		slots++
	}
	for _, p := range m.Params {
		slots += p.Kind.StackSlots()
	}

	f := &frame{cmid: cm.ID, locals: make([]byte, slots*vm.SlotSize), stackEnd: stackEnd}
	off := 0
	if !m.Static {
		binary.LittleEndian.PutUint64(f.locals[off:], uint64(receiver))
		off += vm.SlotSize
	}
	for i, p := range m.Params {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		switch p.Kind {
		case model.KindReference:
			binary.LittleEndian.PutUint64(f.locals[off:], uint64(v.obj))
		case model.KindLong, model.KindDouble:
			binary.LittleEndian.PutUint64(f.locals[off:], v.bits)
		default:
			binary.LittleEndian.PutUint32(f.locals[off:], uint32(v.bits))
		}
		off += p.Kind.StackSlots() * vm.SlotSize
	}
	return s.add(f)
}

func (s *Stack) add(f *frame) vm.FramePointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next += 0x100
	s.frames[s.next] = f
	return s.next
}

func (s *Stack) Pop(fp vm.FramePointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, fp)
}

func (s *Stack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

func (s *Stack) frame(fp vm.FramePointer) *frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames[fp]
}

func (s *Stack) CompiledMethodID(fp vm.FramePointer) int32 {
	if f := s.frame(fp); f != nil {
		return f.cmid
	}
	return vm.InvisibleMethodID
}

func (s *Stack) IsStackEnd(fp vm.FramePointer) bool {
	f := s.frame(fp)
	return f == nil || f.stackEnd
}

func (s *Stack) LocalsOffset(vm.FramePointer) int { return 0 }

func (s *Stack) LoadInt(fp vm.FramePointer, offset int) int32 {
	return int32(binary.LittleEndian.Uint32(s.frame(fp).locals[offset:]))
}

func (s *Stack) LoadLong(fp vm.FramePointer, offset int) int64 {
	return int64(binary.LittleEndian.Uint64(s.frame(fp).locals[offset:]))
}

func (s *Stack) LoadFloat(fp vm.FramePointer, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(s.frame(fp).locals[offset:]))
}

func (s *Stack) LoadDouble(fp vm.FramePointer, offset int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.frame(fp).locals[offset:]))
}

func (s *Stack) LoadObject(fp vm.FramePointer, offset int) vm.ObjectRef {
	return vm.ObjectRef(binary.LittleEndian.Uint64(s.frame(fp).locals[offset:]))
}
