package profile

import (
	"slices"
	"strconv"
	"strings"

	"github.com/mabhi256/paramspec/internal/model"
)

// ParameterProfile is one unsummarized sample: the exact descriptors of a
// single invocation plus how many identical invocations were merged into it.
type ParameterProfile struct {
	method       *model.Method
	values       []Descriptor
	filled       int
	multiplicity int
}

func NewParameterProfile(m *model.Method) *ParameterProfile {
	return &ParameterProfile{
		method:       m,
		values:       make([]Descriptor, m.ParameterCount()),
		multiplicity: 1,
	}
}

func (p *ParameterProfile) add(d Descriptor) {
	p.values[p.filled] = d
	p.filled++
}

func (p *ParameterProfile) AddBoolean(v bool)        { p.add(Boolean(v)) }
func (p *ParameterProfile) AddByte(v int8)           { p.add(Byte(v)) }
func (p *ParameterProfile) AddChar(v uint16)         { p.add(Char(v)) }
func (p *ParameterProfile) AddShort(v int16)         { p.add(Short(v)) }
func (p *ParameterProfile) AddInt(v int32)           { p.add(Int(v)) }
func (p *ParameterProfile) AddLong(v int64)          { p.add(Long(v)) }
func (p *ParameterProfile) AddFloat(v float32)       { p.add(Float(v)) }
func (p *ParameterProfile) AddDouble(v float64)      { p.add(Double(v)) }
func (p *ParameterProfile) AddType(t *model.TypeRef) { p.add(Type(t)) }

func (p *ParameterProfile) Method() *model.Method { return p.method }

func (p *ParameterProfile) Multiplicity() int { return p.multiplicity }

// Complete reports whether a descriptor was recorded for every position.
func (p *ParameterProfile) Complete() bool { return p.filled == len(p.values) }

func (p *ParameterProfile) Value(i int) Descriptor { return p.values[i] }

// MergeWith folds other into p when both hold the same descriptors at every
// position. A profile never merges with itself.
func (p *ParameterProfile) MergeWith(other *ParameterProfile) bool {
	if p == other || !slices.Equal(p.values, other.values) {
		return false
	}
	p.multiplicity++
	return true
}

func (p *ParameterProfile) String() string {
	var sb strings.Builder
	if p.multiplicity != 1 {
		sb.WriteString(strconv.Itoa(p.multiplicity))
		sb.WriteString(" x ")
	}
	sb.WriteString(p.method.Class)
	sb.WriteString(" ")
	sb.WriteString(p.method.Name)
	sb.WriteString(" ")
	sb.WriteString(p.method.Signature())

	i := 0
	if !p.method.Static {
		sb.WriteString(" {")
		sb.WriteString(p.values[0].String())
		sb.WriteString("}")
		i++
	}
	for ; i < len(p.values); i++ {
		sb.WriteString(" ")
		sb.WriteString(p.values[i].String())
	}
	return sb.String()
}
