package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/paramspec/internal/model"
)

var (
	intType = &model.TypeRef{ID: 1, Name: "int", Kind: model.KindInt}
	baseT   = &model.TypeRef{ID: 2, Name: "T", Kind: model.KindReference}
	subS    = &model.TypeRef{ID: 3, Name: "S", Kind: model.KindReference, Super: baseT}
	subU    = &model.TypeRef{ID: 4, Name: "U", Kind: model.KindReference, Super: baseT}
)

func staticMethod(params ...*model.TypeRef) *model.Method {
	return &model.Method{ID: 1, Class: "Demo", Name: "f", Static: true, Params: params}
}

func instanceMethod(params ...*model.TypeRef) *model.Method {
	return &model.Method{ID: 2, Class: "Demo", Name: "g", Params: params}
}

func TestDescriptorEquality(t *testing.T) {
	assert.Equal(t, Int(7), Int(7))
	assert.NotEqual(t, Int(7), Long(7))
	assert.NotEqual(t, Short(1), Char(1))
	assert.Equal(t, Float(float32(math.NaN())), Float(float32(math.NaN())))
	assert.NotEqual(t, Double(0), Double(math.Copysign(0, -1)))
	assert.Equal(t, Null(), Type(nil))
	assert.Equal(t, Type(subS), Type(subS))
	assert.NotEqual(t, Type(subS), Type(subU))

	assert.Equal(t, "NULL", Null().String())
	assert.Equal(t, "int=7", Int(7).Label())
	assert.Equal(t, "type=S", Type(subS).Label())
	assert.True(t, Type(subS).HasTypeInformation())
	assert.False(t, Null().HasTypeInformation())
}

func TestDataForParameterOrdersByCount(t *testing.T) {
	p := NewMethodProfile(staticMethod(intType), CandidatesAll)
	for range 3 {
		p.AddInt(1) // A
	}
	for range 5 {
		p.AddInt(2) // B
	}
	p.AddInt(3) // C

	assert.Equal(t, []Entry{
		{Value: Int(2), Count: 5},
		{Value: Int(1), Count: 3},
		{Value: Int(3), Count: 1},
	}, p.CandidatesForParameter(0))
	assert.Equal(t, 9, p.Samples())
}

func TestCursorWrapsAcrossPositions(t *testing.T) {
	p := NewMethodProfile(instanceMethod(intType, baseT), CandidatesAll)
	for range 4 {
		p.AddType(subU) // receiver
		p.AddInt(7)
		p.AddType(subS)
	}

	require.Equal(t, 3, p.ParameterCount())
	assert.Equal(t, []Entry{{Value: Type(subU), Count: 4}}, p.DataForParameter(0))
	assert.Equal(t, []Entry{{Value: Int(7), Count: 4}}, p.DataForParameter(1))
	assert.Equal(t, []Entry{{Value: Type(subS), Count: 4}}, p.DataForParameter(2))
	assert.Equal(t, 4, p.Samples())
	assert.Nil(t, p.DataForParameter(3))
}

func TestDeclaredTypeIsNotACandidate(t *testing.T) {
	p := NewMethodProfile(staticMethod(baseT), CandidatesAll)
	for range 10 {
		p.AddType(baseT)
	}
	assert.Len(t, p.DataForParameter(0), 1)
	assert.Empty(t, p.CandidatesForParameter(0))

	p.AddType(subS)
	p.AddType(nil)
	assert.Equal(t, []Entry{
		{Value: Type(subS), Count: 1},
		{Value: Null(), Count: 1},
	}, p.CandidatesForParameter(0))
}

func TestDeclaredTypeSuppressionUsesShiftedIndexForInstanceMethods(t *testing.T) {
	p := NewMethodProfile(instanceMethod(baseT), CandidatesAll)
	p.AddType(baseT) // receiver happens to be a T
	p.AddType(baseT)

	assert.Equal(t, []Entry{{Value: Type(baseT), Count: 1}}, p.CandidatesForParameter(0))
	assert.Empty(t, p.CandidatesForParameter(1))
}

func TestCandidateTypeFilter(t *testing.T) {
	m := staticMethod(baseT, intType)

	typesOnly := NewMethodProfile(m, CandidatesTypesOnly)
	valuesOnly := NewMethodProfile(m, CandidatesValuesOnly)
	for _, p := range []*MethodProfile{typesOnly, valuesOnly} {
		p.AddType(subS)
		p.AddInt(3)
	}

	assert.Len(t, typesOnly.CandidatesForParameter(0), 1)
	assert.Empty(t, typesOnly.CandidatesForParameter(1))
	assert.Empty(t, valuesOnly.CandidatesForParameter(0))
	assert.Len(t, valuesOnly.CandidatesForParameter(1), 1)

	typesOnly.AddType(nil)
	typesOnly.AddInt(3)
	assert.Empty(t, typesOnly.CandidatesForParameter(0), "null is a value, not a type")
}

func TestParseCandidateType(t *testing.T) {
	ct, err := ParseCandidateType("TYPES")
	require.NoError(t, err)
	assert.Equal(t, CandidatesTypesOnly, ct)

	_, err = ParseCandidateType("bogus")
	assert.Error(t, err)
}

func TestMethodProfileString(t *testing.T) {
	m := instanceMethod(intType)
	m.Descriptor = "(I)V"
	p := NewMethodProfile(m, CandidatesAll)
	p.AddType(subS)
	p.AddInt(7)

	assert.Equal(t,
		"------ START PROFILE of g , (I)V\n"+
			"Parameter 0 (implicit this) : 1 x S | \n"+
			"Parameter 1: 1 x 7 | \n"+
			"------ END PROFILE\n",
		p.String())
}

func TestParameterProfileMerge(t *testing.T) {
	m := staticMethod(intType, baseT)

	build := func(i int32, ty *model.TypeRef) *ParameterProfile {
		p := NewParameterProfile(m)
		p.AddInt(i)
		p.AddType(ty)
		return p
	}

	a := build(7, subS)
	b := build(7, subS)
	c := build(7, subU)
	require.True(t, a.Complete())

	assert.False(t, a.MergeWith(a), "a profile never merges with itself")
	assert.False(t, a.MergeWith(c))
	assert.True(t, a.MergeWith(b))
	assert.Equal(t, 2, a.Multiplicity())
	assert.Equal(t, 1, b.Multiplicity())
	assert.Equal(t, "2 x Demo f (int,T)void 7 S", a.String())
}

func TestParameterProfileMergesNaNByBits(t *testing.T) {
	m := staticMethod(&model.TypeRef{ID: 9, Name: "double", Kind: model.KindDouble})
	a := NewParameterProfile(m)
	b := NewParameterProfile(m)
	a.AddDouble(math.NaN())
	b.AddDouble(math.NaN())
	assert.True(t, a.MergeWith(b))
}

func TestParseLabel(t *testing.T) {
	for _, d := range []Descriptor{
		Boolean(true), Byte(-3), Char('x'), Short(300), Int(7), Long(-1 << 40),
		Float(1.5), Double(math.Inf(-1)), Null(),
	} {
		got, err := ParseLabel(d.Label())
		require.NoError(t, err, d.Label())
		assert.Equal(t, d, got, d.Label())
	}

	for _, bad := range []string{"7", "int=x", "byte=300", "char=ab", "string=s", "type=T"} {
		_, err := ParseLabel(bad)
		assert.Error(t, err, bad)
	}
}
