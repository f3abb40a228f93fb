// Package encoding implements the sample buffer: a fixed-capacity byte array
// that sampling threads write parameter values into and the aggregator reads
// back. All values are stored big-endian at caller-chosen offsets.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mabhi256/paramspec/internal/model"
)

type Mode uint32

const (
	ModeEncoding Mode = iota
	ModeDecoding
)

func (m Mode) String() string {
	if m == ModeDecoding {
		return "DECODING"
	}
	return "ENCODING"
}

type ErrorFlag uint32

const (
	NoError ErrorFlag = iota
	StillInEncodingMode
	StillInDecodingMode
)

func (e ErrorFlag) String() string {
	switch e {
	case NoError:
		return "NO_ERROR"
	case StillInEncodingMode:
		return "STILL_IN_ENCODING_MODE"
	case StillInDecodingMode:
		return "STILL_IN_DECODING_MODE"
	default:
		return fmt.Sprintf("ErrorFlag(%d)", uint32(e))
	}
}

// NullTypeID marks a null reference in place of a type id.
const NullTypeID int32 = math.MinInt32

// Values returned when a method is called in the wrong mode.
const (
	MinByte  int8   = math.MinInt8
	MinChar  uint16 = 0
	MinShort int16  = math.MinInt16
	MinInt   int32  = math.MinInt32
	MinLong  int64  = math.MinInt64

	// Smallest positive values, matching the managed language's MIN_VALUE
	// for floating point types.
	MinFloat  float32 = math.SmallestNonzeroFloat32
	MinDouble float64 = math.SmallestNonzeroFloat64
)

var ErrUnresolvedType = errors.New("unresolved type id in sample buffer")

// TypeLookup resolves a type id written by EncodeType.
type TypeLookup interface {
	ResolveType(id int32) (*model.TypeRef, bool)
}

// Buffer is the encode/decode state machine. Encoders call Encode* while the
// buffer is in ENCODING mode; the consumer switches to DECODING mode and
// reads the same offsets back. Calls in the wrong mode never panic: they set
// the error flag and return the type's minimum value, and an encode in the
// wrong mode leaves the contents alone.
//
// The bytes themselves are not synchronized. Writers are serialized by the
// caller and the consumer only reads after every writer has finished.
type Buffer struct {
	data    []byte
	mode    atomic.Uint32
	err     atomic.Uint32
	balance atomic.Int32
}

func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

func (b *Buffer) Capacity() int { return len(b.data) }

func (b *Buffer) Mode() Mode { return Mode(b.mode.Load()) }

func (b *Buffer) ErrorFlag() ErrorFlag { return ErrorFlag(b.err.Load()) }

// Balance is the number of encodes minus the number of decodes since the
// last Reset.
func (b *Buffer) Balance() int { return int(b.balance.Load()) }

// BalanceMatches reports whether every encoded value has been decoded.
func (b *Buffer) BalanceMatches() bool { return b.balance.Load() == 0 }

// Bytes exposes the raw contents for dumps.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) SwitchToDecodeMode() {
	b.mode.Store(uint32(ModeDecoding))
}

// Reset clears the error flag and balance and returns to ENCODING mode. The
// contents are kept; every range is written before it is read again.
func (b *Buffer) Reset() {
	b.err.Store(uint32(NoError))
	b.mode.Store(uint32(ModeEncoding))
	b.balance.Store(0)
}

func (b *Buffer) beginEncode() bool {
	if Mode(b.mode.Load()) != ModeEncoding {
		b.err.Store(uint32(StillInDecodingMode))
		return false
	}
	b.balance.Add(1)
	return true
}

func (b *Buffer) beginDecode() bool {
	if Mode(b.mode.Load()) != ModeDecoding {
		b.err.Store(uint32(StillInEncodingMode))
		return false
	}
	b.balance.Add(-1)
	return true
}

// EncodeBoolean stores true as 0xFF and false as 0x00.
func (b *Buffer) EncodeBoolean(offset int, v bool) {
	if !b.beginEncode() {
		return
	}
	if v {
		b.data[offset] = 0xFF
	} else {
		b.data[offset] = 0x00
	}
}

func (b *Buffer) DecodeBoolean(offset int) bool {
	if !b.beginDecode() {
		return false
	}
	return b.data[offset] == 0xFF
}

func (b *Buffer) EncodeByte(offset int, v int8) {
	if !b.beginEncode() {
		return
	}
	b.data[offset] = byte(v)
}

func (b *Buffer) DecodeByte(offset int) int8 {
	if !b.beginDecode() {
		return MinByte
	}
	return int8(b.data[offset])
}

func (b *Buffer) EncodeChar(offset int, v uint16) {
	if !b.beginEncode() {
		return
	}
	binary.BigEndian.PutUint16(b.data[offset:], v)
}

func (b *Buffer) DecodeChar(offset int) uint16 {
	if !b.beginDecode() {
		return MinChar
	}
	return binary.BigEndian.Uint16(b.data[offset:])
}

// EncodeShort shares the char representation.
func (b *Buffer) EncodeShort(offset int, v int16) {
	b.EncodeChar(offset, uint16(v))
}

func (b *Buffer) DecodeShort(offset int) int16 {
	if !b.beginDecode() {
		return MinShort
	}
	return int16(binary.BigEndian.Uint16(b.data[offset:]))
}

func (b *Buffer) EncodeInt(offset int, v int32) {
	if !b.beginEncode() {
		return
	}
	binary.BigEndian.PutUint32(b.data[offset:], uint32(v))
}

func (b *Buffer) DecodeInt(offset int) int32 {
	if !b.beginDecode() {
		return MinInt
	}
	return int32(binary.BigEndian.Uint32(b.data[offset:]))
}

// EncodeFloat stores the raw IEEE bits so NaN payloads survive.
func (b *Buffer) EncodeFloat(offset int, v float32) {
	if !b.beginEncode() {
		return
	}
	binary.BigEndian.PutUint32(b.data[offset:], math.Float32bits(v))
}

func (b *Buffer) DecodeFloat(offset int) float32 {
	if !b.beginDecode() {
		return MinFloat
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b.data[offset:]))
}

func (b *Buffer) EncodeLong(offset int, v int64) {
	if !b.beginEncode() {
		return
	}
	binary.BigEndian.PutUint64(b.data[offset:], uint64(v))
}

func (b *Buffer) DecodeLong(offset int) int64 {
	if !b.beginDecode() {
		return MinLong
	}
	return int64(binary.BigEndian.Uint64(b.data[offset:]))
}

func (b *Buffer) EncodeDouble(offset int, v float64) {
	if !b.beginEncode() {
		return
	}
	binary.BigEndian.PutUint64(b.data[offset:], math.Float64bits(v))
}

func (b *Buffer) DecodeDouble(offset int) float64 {
	if !b.beginDecode() {
		return MinDouble
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b.data[offset:]))
}

// EncodeType stores the id of t, or NullTypeID for a null reference.
func (b *Buffer) EncodeType(offset int, t *model.TypeRef) {
	id := NullTypeID
	if t != nil {
		id = t.ID
	}
	b.EncodeInt(offset, id)
}

// DecodeType reads a type id and resolves it. A nil type with a true ok
// result is a null reference. A wrong-mode call returns (nil, false).
//
// An id that does not resolve means the buffer is corrupt, and DecodeType
// panics with an error wrapping ErrUnresolvedType.
func (b *Buffer) DecodeType(offset int, types TypeLookup) (*model.TypeRef, bool) {
	if Mode(b.mode.Load()) != ModeDecoding {
		b.err.Store(uint32(StillInEncodingMode))
		return nil, false
	}
	id := b.DecodeInt(offset)
	if id == NullTypeID {
		return nil, true
	}
	if id < 1 {
		panic(fmt.Errorf("type id %d at offset %d: %w", id, offset, ErrUnresolvedType))
	}
	t, ok := types.ResolveType(id)
	if !ok || t == nil {
		panic(fmt.Errorf("type id %d at offset %d: %w", id, offset, ErrUnresolvedType))
	}
	return t, true
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{capacity=%d mode=%s error=%s balance=%d}",
		len(b.data), b.Mode(), b.ErrorFlag(), b.Balance())
}
