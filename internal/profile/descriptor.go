package profile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mabhi256/paramspec/internal/model"
)

type DescriptorKind uint8

const (
	DescBoolean DescriptorKind = iota + 1
	DescByte
	DescChar
	DescShort
	DescInt
	DescLong
	DescFloat
	DescDouble
	DescType
	DescNull
)

func (k DescriptorKind) String() string {
	switch k {
	case DescBoolean:
		return "boolean"
	case DescByte:
		return "byte"
	case DescChar:
		return "char"
	case DescShort:
		return "short"
	case DescInt:
		return "int"
	case DescLong:
		return "long"
	case DescFloat:
		return "float"
	case DescDouble:
		return "double"
	case DescType:
		return "type"
	case DescNull:
		return "null"
	default:
		return fmt.Sprintf("DescriptorKind(%d)", uint8(k))
	}
}

// Descriptor is one observed parameter value: a primitive, the exact runtime
// type of an object, or null. Descriptors are comparable and are used
// directly as map keys. Floating point values are held as raw bits, so NaN
// equals itself and 0.0 differs from -0.0.
type Descriptor struct {
	Kind DescriptorKind
	bits uint64
	typ  *model.TypeRef
}

func Boolean(v bool) Descriptor {
	var bits uint64
	if v {
		bits = 1
	}
	return Descriptor{Kind: DescBoolean, bits: bits}
}

func Byte(v int8) Descriptor     { return Descriptor{Kind: DescByte, bits: uint64(int64(v))} }
func Char(v uint16) Descriptor   { return Descriptor{Kind: DescChar, bits: uint64(v)} }
func Short(v int16) Descriptor   { return Descriptor{Kind: DescShort, bits: uint64(int64(v))} }
func Int(v int32) Descriptor     { return Descriptor{Kind: DescInt, bits: uint64(int64(v))} }
func Long(v int64) Descriptor    { return Descriptor{Kind: DescLong, bits: uint64(v)} }
func Float(v float32) Descriptor { return Descriptor{Kind: DescFloat, bits: uint64(math.Float32bits(v))} }
func Double(v float64) Descriptor {
	return Descriptor{Kind: DescDouble, bits: math.Float64bits(v)}
}

// Type describes an object by its exact runtime type. A nil type is the
// null reference.
func Type(t *model.TypeRef) Descriptor {
	if t == nil {
		return Null()
	}
	return Descriptor{Kind: DescType, typ: t}
}

func Null() Descriptor { return Descriptor{Kind: DescNull} }

// HasTypeInformation reports whether the descriptor names a runtime type
// rather than a value. Null counts as a value.
func (d Descriptor) HasTypeInformation() bool { return d.Kind == DescType }

func (d Descriptor) Bool() bool { return d.bits != 0 }

// Int64 returns integral values sign-extended (char is zero-extended).
func (d Descriptor) Int64() int64 { return int64(d.bits) }

func (d Descriptor) Float32() float32 { return math.Float32frombits(uint32(d.bits)) }

func (d Descriptor) Float64() float64 { return math.Float64frombits(d.bits) }

func (d Descriptor) Bits() uint64 { return d.bits }

func (d Descriptor) TypeRef() *model.TypeRef { return d.typ }

func (d Descriptor) String() string {
	switch d.Kind {
	case DescBoolean:
		return strconv.FormatBool(d.Bool())
	case DescByte, DescShort, DescInt, DescLong:
		return strconv.FormatInt(d.Int64(), 10)
	case DescChar:
		return strconv.QuoteRune(rune(d.bits))
	case DescFloat:
		return strconv.FormatFloat(float64(d.Float32()), 'g', -1, 32)
	case DescDouble:
		return strconv.FormatFloat(d.Float64(), 'g', -1, 64)
	case DescType:
		return d.typ.Name
	case DescNull:
		return "NULL"
	default:
		return "?"
	}
}

// Label renders the descriptor together with its kind, e.g. "int=7".
func (d Descriptor) Label() string {
	if d.Kind == DescNull {
		return "NULL"
	}
	return fmt.Sprintf("%s=%s", d.Kind, d)
}

// ParseLabel is the inverse of Label for primitive values and null. Types
// cannot be parsed since they need a loaded class.
func ParseLabel(s string) (Descriptor, error) {
	if strings.EqualFold(s, "null") {
		return Null(), nil
	}
	kind, value, ok := strings.Cut(s, "=")
	if !ok {
		return Descriptor{}, fmt.Errorf("value %q: want kind=value", s)
	}
	bitSize := 64
	switch kind {
	case "boolean":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return Descriptor{}, fmt.Errorf("value %q: %w", s, err)
		}
		return Boolean(v), nil
	case "char":
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		r := []rune(value)
		if len(r) != 1 || r[0] > math.MaxUint16 {
			return Descriptor{}, fmt.Errorf("value %q: want a single UTF-16 character", s)
		}
		return Char(uint16(r[0])), nil
	case "float", "double":
		if kind == "float" {
			bitSize = 32
		}
		v, err := strconv.ParseFloat(value, bitSize)
		if err != nil {
			return Descriptor{}, fmt.Errorf("value %q: %w", s, err)
		}
		if bitSize == 32 {
			return Float(float32(v)), nil
		}
		return Double(v), nil
	case "byte":
		bitSize = 8
	case "short":
		bitSize = 16
	case "int":
		bitSize = 32
	case "long":
	default:
		return Descriptor{}, fmt.Errorf("value %q: unknown kind %q", s, kind)
	}
	v, err := strconv.ParseInt(value, 10, bitSize)
	if err != nil {
		return Descriptor{}, fmt.Errorf("value %q: %w", s, err)
	}
	switch bitSize {
	case 8:
		return Byte(int8(v)), nil
	case 16:
		return Short(int16(v)), nil
	case 32:
		return Int(int32(v)), nil
	}
	return Long(v), nil
}
