// Package sampler takes parameter samples at method-entry yieldpoints of
// baseline compiled methods.
//
// Update runs on mutator threads inside a safepoint. It never blocks for
// long, never allocates on the sampling path and never reports errors to
// its caller: every rejected yieldpoint only bumps a counter.
package sampler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mabhi256/paramspec/internal/encoding"
	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/vm"
)

const (
	DefaultCapacity    = 20000
	DefaultSampleCount = 1000

	// NoEntry marks a sample slot that was reserved but never written.
	NoEntry int32 = -1
)

var (
	ErrStackOverrun    = errors.New("sampler walked off the stack")
	ErrMissingReceiver = errors.New("implicit this parameter could not be found")
)

// Organizer is notified when a sampling window is full and all producers
// have left. Activate must not block.
type Organizer interface {
	Activate()
}

type Options struct {
	Capacity    int
	SampleCount int

	// ProfileVMMethods allows sampling methods of the runtime itself.
	ProfileVMMethods bool

	// VerifyAssertions turns integrity violations into fatal errors.
	VerifyAssertions bool
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.SampleCount <= 0 {
		o.SampleCount = DefaultSampleCount
	}
	return o
}

// Sampler owns the sample buffer and the per-slot bookkeeping for one
// sampling window.
//
// Three locks split the work. indexCalculation pairs the byte offset and slot
// reservations so both refer to the same sample. updateCalls guards the
// count of producers inside Update and is the hand-off point to the
// organizer. dumpLock serializes writers of the buffer.
type Sampler struct {
	opts    Options
	methods vm.CompiledMethodTable
	frames  vm.FrameAccessor
	types   vm.TypeResolver

	buffer       *encoding.Buffer
	sampled      []*model.Method
	startOffsets []int32

	nextParamOffset   atomic.Int32
	samplesLeft       atomic.Int32
	activeUpdateCalls atomic.Int32
	active            atomic.Bool

	indexCalculation sync.Mutex
	updateCalls      sync.Mutex
	dumpLock         sync.Mutex

	organizer Organizer
	counters  counters

	// Fatal is called for integrity violations when VerifyAssertions is
	// set. It defaults to panicking.
	Fatal func(error)
}

func New(opts Options, methods vm.CompiledMethodTable, frames vm.FrameAccessor, types vm.TypeResolver) *Sampler {
	opts = opts.withDefaults()
	s := &Sampler{
		opts:         opts,
		methods:      methods,
		frames:       frames,
		types:        types,
		buffer:       encoding.New(opts.Capacity),
		sampled:      make([]*model.Method, opts.SampleCount),
		startOffsets: make([]int32, opts.SampleCount),
		Fatal:        func(err error) { panic(err) },
	}
	s.resetWindow()
	s.active.Store(true)
	return s
}

func (s *Sampler) SetOrganizer(o Organizer) {
	s.updateCalls.Lock()
	defer s.updateCalls.Unlock()
	s.organizer = o
}

// IsActive reports whether the sampling window is open.
func (s *Sampler) IsActive() bool { return s.active.Load() }

// Activate opens a new sampling window.
func (s *Sampler) Activate() { s.active.Store(true) }

// PassivateIfIdle closes the sampling window if no producer is inside
// Update. Later yieldpoints are counted as organizer-busy.
func (s *Sampler) PassivateIfIdle() bool {
	s.updateCalls.Lock()
	defer s.updateCalls.Unlock()
	if s.activeUpdateCalls.Load() != 0 {
		return false
	}
	s.active.Store(false)
	return true
}

// Update is the yieldpoint hook. fp is the frame of the method that reached
// the yieldpoint.
func (s *Sampler) Update(fp vm.FramePointer, reason model.Reason) {
	if reason > model.ReasonOther {
		reason = model.ReasonOther
	}
	s.counters.reasons[reason].Add(1)

	cmid := s.frames.CompiledMethodID(fp)
	if cmid == vm.InvisibleMethodID {
		s.counters.skip(SkipNoMethod)
		return
	}
	cm, ok := s.methods.CompiledMethod(cmid)
	if !ok || cm.Method == nil {
		s.counters.skip(SkipNoMethod)
		return
	}
	if cm.IsOutdated() || cm.IsInvalid() || cm.Compiler == model.CompilerJNI || cm.Compiler == model.CompilerTrap {
		s.counters.skip(SkipIrrelevant)
		return
	}
	if cm.Compiler == model.CompilerOpt {
		s.counters.optReasons[reason].Add(1)
		s.counters.skip(SkipOptCompiled)
		return
	}

	m := cm.Method
	if m.Uninteresting() || m.UsesUnboxedTypes() || m.ImpossibleToSpecialize() || m.UnsafeToSpecialize() {
		s.counters.skip(SkipIneligible)
		return
	}

	// Only the prologue reliably runs before the method writes to its
	// parameters.
	if reason != model.ReasonPrologue {
		s.counters.skip(SkipNonPrologue)
		return
	}

	if m.Has(model.FlagVMInternal) && !s.opts.ProfileVMMethods {
		s.counters.skip(SkipVMMethod)
		return
	}

	needed := int32(m.EncodedSize())

	if !s.registerUpdateCall() {
		s.counters.skip(SkipOrganizerBusy)
		return
	}

	// A reservation that ends up unused leaves a hole in the slot sequence;
	// the organizer skips it.
	s.indexCalculation.Lock()
	offset := s.nextParamOffset.Add(needed) - needed
	samplesLeft := s.samplesLeft.Add(-1) + 1
	s.indexCalculation.Unlock()

	index := int32(s.opts.SampleCount) - samplesLeft
	if int(offset)+int(needed) > s.opts.Capacity || samplesLeft <= 0 {
		s.unregisterUpdateCall(true)
		s.counters.skip(SkipBufferExhausted)
		return
	}

	if s.frames.IsStackEnd(fp) {
		s.unregisterUpdateCall(false)
		s.counters.skip(SkipStackWalk)
		if s.opts.VerifyAssertions {
			s.Fatal(fmt.Errorf("frame %#x of %s: %w", uintptr(fp), m, ErrStackOverrun))
		}
		return
	}

	s.dumpLock.Lock()
	s.sampled[index] = m
	s.startOffsets[index] = offset
	s.dumpParameters(fp, m, int(offset))
	s.dumpLock.Unlock()

	s.unregisterUpdateCall(false)
	s.counters.taken.Add(1)
}

func (s *Sampler) registerUpdateCall() bool {
	s.updateCalls.Lock()
	defer s.updateCalls.Unlock()
	if !s.active.Load() {
		return false
	}
	s.activeUpdateCalls.Add(1)
	return true
}

// unregisterUpdateCall leaves the producer section. The last producer to
// leave a window that is out of space or slots closes it and wakes the
// organizer.
func (s *Sampler) unregisterUpdateCall(exhausted bool) {
	s.updateCalls.Lock()
	defer s.updateCalls.Unlock()
	previous := s.activeUpdateCalls.Add(-1) + 1
	if previous != 1 || !s.active.Load() {
		return
	}
	if exhausted || s.samplesLeft.Load() <= 0 {
		s.active.Store(false)
		if s.organizer != nil {
			s.organizer.Activate()
		}
	}
}

func (s *Sampler) dumpParameters(fp vm.FramePointer, m *model.Method, offset int) {
	slot := s.frames.LocalsOffset(fp)

	if !m.Static {
		obj := s.frames.LoadObject(fp, slot)
		if obj == 0 && s.opts.VerifyAssertions {
			s.Fatal(fmt.Errorf("%s: %w", m, ErrMissingReceiver))
		}
		s.encodeObject(offset, obj)
		offset += model.KindReference.Size()
		slot += vm.SlotSize
	}

	for _, p := range m.Params {
		switch p.Kind {
		case model.KindReference:
			s.encodeObject(offset, s.frames.LoadObject(fp, slot))
		case model.KindBoolean:
			s.buffer.EncodeBoolean(offset, s.frames.LoadInt(fp, slot) != 0)
		case model.KindByte:
			s.buffer.EncodeByte(offset, int8(s.frames.LoadInt(fp, slot)))
		case model.KindChar:
			s.buffer.EncodeChar(offset, uint16(s.frames.LoadInt(fp, slot)))
		case model.KindShort:
			s.buffer.EncodeShort(offset, int16(s.frames.LoadInt(fp, slot)))
		case model.KindInt:
			s.buffer.EncodeInt(offset, s.frames.LoadInt(fp, slot))
		case model.KindLong:
			s.buffer.EncodeLong(offset, s.frames.LoadLong(fp, slot))
		case model.KindFloat:
			s.buffer.EncodeFloat(offset, s.frames.LoadFloat(fp, slot))
		case model.KindDouble:
			s.buffer.EncodeDouble(offset, s.frames.LoadDouble(fp, slot))
		}
		offset += p.Kind.Size()
		slot += p.Kind.StackSlots() * vm.SlotSize
	}
}

func (s *Sampler) encodeObject(offset int, obj vm.ObjectRef) {
	if obj == 0 {
		s.buffer.EncodeType(offset, nil)
		return
	}
	s.buffer.EncodeType(offset, s.types.TypeOf(obj))
}

// Reset prepares the next sampling window. It must only be called while no
// producer is inside Update, which holds once the organizer was activated.
// Counters are kept.
func (s *Sampler) Reset() {
	s.resetWindow()
	s.counters.windows.Add(1)
}

func (s *Sampler) resetWindow() {
	s.samplesLeft.Store(int32(s.opts.SampleCount))
	s.nextParamOffset.Store(0)
	clear(s.sampled)
	for i := range s.startOffsets {
		s.startOffsets[i] = NoEntry
	}
	s.buffer.Reset()
}

// Buffer exposes the sample buffer to the organizer.
func (s *Sampler) Buffer() *encoding.Buffer { return s.buffer }

// Slots returns the per-slot methods and buffer start offsets of the current
// window. The slices are shared; callers must not keep them past Reset.
func (s *Sampler) Slots() ([]*model.Method, []int32) {
	return s.sampled, s.startOffsets
}

// SamplesLeft can go negative while a full window is being drained.
func (s *Sampler) SamplesLeft() int { return int(s.samplesLeft.Load()) }

func (s *Sampler) ActiveUpdateCalls() int { return int(s.activeUpdateCalls.Load()) }

func (s *Sampler) Counters() Counters { return s.counters.snapshot() }
