package model

import "fmt"

// TypeKind classifies a declared parameter type by how its value sits in a
// baseline frame and how many bytes it costs in the sample buffer.
type TypeKind byte

const (
	KindBoolean TypeKind = iota + 1
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindReference
	KindWord    // address, offset, extent and other raw machine words
	KindCode    // code pointers
	KindUnboxed // unboxed value types that have no stable layout
)

func (k TypeKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindReference:
		return "reference"
	case KindWord:
		return "word"
	case KindCode:
		return "code"
	case KindUnboxed:
		return "unboxed"
	default:
		return fmt.Sprintf("TypeKind(0x%02X)", byte(k))
	}
}

// Size returns the number of bytes a value of this kind occupies in the
// sample buffer. References are stored as a 4-byte type id.
func (k TypeKind) Size() int {
	switch k {
	case KindBoolean, KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat, KindReference:
		return 4
	case KindLong, KindDouble:
		return 8
	default:
		return 0
	}
}

// StackSlots returns the number of baseline frame slots a parameter of this
// kind uses.
func (k TypeKind) StackSlots() int {
	switch k {
	case KindLong, KindDouble:
		return 2
	default:
		return 1
	}
}

func (k TypeKind) unboxed() bool {
	return k == KindWord || k == KindCode || k == KindUnboxed
}

// TypeRef is a resolved runtime type. IDs are small positive integers handed
// out by the type registry; primitive types get ids too so declared parameter
// lists can be expressed uniformly.
type TypeRef struct {
	ID    int32
	Name  string
	Kind  TypeKind
	Array bool
	Super *TypeRef
}

func (t *TypeRef) String() string {
	if t == nil {
		return "null"
	}
	return t.Name
}
