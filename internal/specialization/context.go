// Package specialization decides which methods get value-specialized
// variants and keeps track of those variants.
package specialization

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/vm"
)

// Context is a specialization context: a method plus the values some of its
// declared parameters are assumed to hold. Values is indexed by declared
// parameter (the receiver is never part of it); nil entries are not fixed.
//
// Two contexts with the same Key describe the same specialized variant.
type Context struct {
	Method *model.Method
	Values []*profile.Descriptor
}

// NewContext panics if values does not cover exactly the declared
// parameters of m.
func NewContext(m *model.Method, values []*profile.Descriptor) *Context {
	if len(values) != len(m.Params) {
		panic(fmt.Sprintf("context for %s: %d values for %d declared parameters", m, len(values), len(m.Params)))
	}
	return &Context{Method: m, Values: values}
}

// FixParameter builds a context that fixes only the declared parameter at
// index.
func FixParameter(m *model.Method, index int, value profile.Descriptor) *Context {
	values := make([]*profile.Descriptor, len(m.Params))
	values[index] = &value
	return NewContext(m, values)
}

// Key is the structural identity of the context.
func (c *Context) Key() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(int64(c.Method.ID), 10))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(v.Kind)))
		sb.WriteByte(':')
		if t := v.TypeRef(); t != nil {
			sb.WriteString(strconv.FormatInt(int64(t.ID), 10))
		} else {
			sb.WriteString(strconv.FormatUint(v.Bits(), 16))
		}
	}
	return sb.String()
}

// Equal reports structural equality.
func (c *Context) Equal(other *Context) bool {
	return other != nil && c.Key() == other.Key()
}

// Fixed returns the first fixed parameter.
func (c *Context) Fixed() (int, profile.Descriptor, bool) {
	for i, v := range c.Values {
		if v != nil {
			return i, *v, true
		}
	}
	return 0, profile.Descriptor{}, false
}

func (c *Context) assumptions() []vm.FixedParameter {
	var fixed []vm.FixedParameter
	for i, v := range c.Values {
		if v != nil {
			fixed = append(fixed, vm.FixedParameter{Index: i, Value: v.Label()})
		}
	}
	return fixed
}

func (c *Context) String() string {
	var sb strings.Builder
	sb.WriteString("ParameterValueContext ")
	sb.WriteString(c.Method.String())
	sb.WriteString(" parameters: ")
	for i, v := range c.Values {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		if v == nil {
			sb.WriteString("no info")
		} else {
			sb.WriteString(v.Label())
		}
		sb.WriteString(" | ")
	}
	return sb.String()
}
