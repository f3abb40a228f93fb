package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
)

// Recorder receives decoded parameter values in declaration order, receiver
// first for instance methods.
type Recorder interface {
	AddBoolean(v bool)
	AddByte(v int8)
	AddChar(v uint16)
	AddShort(v int16)
	AddInt(v int32)
	AddLong(v int64)
	AddFloat(v float32)
	AddDouble(v float64)
	AddType(t *model.TypeRef)
}

// CandidateType restricts which descriptors may become specialization
// candidates.
type CandidateType int

const (
	CandidatesAll CandidateType = iota
	CandidatesValuesOnly
	CandidatesTypesOnly
)

func (c CandidateType) String() string {
	switch c {
	case CandidatesValuesOnly:
		return "values"
	case CandidatesTypesOnly:
		return "types"
	default:
		return "all"
	}
}

func ParseCandidateType(s string) (CandidateType, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return CandidatesAll, nil
	case "values", "values-only":
		return CandidatesValuesOnly, nil
	case "types", "types-only":
		return CandidatesTypesOnly, nil
	default:
		return CandidatesAll, fmt.Errorf("unknown candidate type %q (want all, values or types)", s)
	}
}

// Entry is a descriptor with the number of times it was observed.
type Entry struct {
	Value Descriptor
	Count int
}

func (e Entry) String() string {
	return fmt.Sprintf("%d x %s", e.Count, e.Value)
}

type frequencyTable struct {
	counts map[Descriptor]int
	order  []Descriptor // first observation order, breaks ties when sorting
}

func newFrequencyTable() *frequencyTable {
	return &frequencyTable{counts: make(map[Descriptor]int)}
}

func (ft *frequencyTable) add(d Descriptor) {
	if _, seen := ft.counts[d]; !seen {
		ft.order = append(ft.order, d)
	}
	ft.counts[d]++
}

func (ft *frequencyTable) sorted() []Entry {
	entries := make([]Entry, len(ft.order))
	for i, d := range ft.order {
		entries[i] = Entry{Value: d, Count: ft.counts[d]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// MethodProfile summarizes all samples of one method as a frequency table per
// parameter position. Position 0 of an instance method is the receiver.
//
// Values are added through Recorder. Each Add advances a cursor to the next
// position and wraps around after the last one, so one sample is exactly one
// Add per position.
type MethodProfile struct {
	mu            sync.RWMutex
	method        *model.Method
	candidateType CandidateType
	positions     []*frequencyTable
	current       int
	samples       int
}

func NewMethodProfile(m *model.Method, candidateType CandidateType) *MethodProfile {
	positions := make([]*frequencyTable, m.ParameterCount())
	for i := range positions {
		positions[i] = newFrequencyTable()
	}
	return &MethodProfile{
		method:        m,
		candidateType: candidateType,
		positions:     positions,
	}
}

func (p *MethodProfile) Method() *model.Method { return p.method }

// ParameterCount includes the receiver of instance methods.
func (p *MethodProfile) ParameterCount() int { return len(p.positions) }

// Samples returns the number of complete samples folded into the profile.
func (p *MethodProfile) Samples() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.samples
}

func (p *MethodProfile) add(d Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.positions) == 0 {
		return
	}
	p.positions[p.current].add(d)
	p.current++
	if p.current >= len(p.positions) {
		p.current = 0
		p.samples++
	}
}

func (p *MethodProfile) AddBoolean(v bool)        { p.add(Boolean(v)) }
func (p *MethodProfile) AddByte(v int8)           { p.add(Byte(v)) }
func (p *MethodProfile) AddChar(v uint16)         { p.add(Char(v)) }
func (p *MethodProfile) AddShort(v int16)         { p.add(Short(v)) }
func (p *MethodProfile) AddInt(v int32)           { p.add(Int(v)) }
func (p *MethodProfile) AddLong(v int64)          { p.add(Long(v)) }
func (p *MethodProfile) AddFloat(v float32)       { p.add(Float(v)) }
func (p *MethodProfile) AddDouble(v float64)      { p.add(Double(v)) }
func (p *MethodProfile) AddType(t *model.TypeRef) { p.add(Type(t)) }

// DataForParameter returns every descriptor seen at position i, most
// frequent first. Equal counts keep first-observation order.
func (p *MethodProfile) DataForParameter(i int) []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.positions) {
		return nil
	}
	return p.positions[i].sorted()
}

// CandidatesForParameter is DataForParameter without the entries that are
// useless for specialization: types identical to the declared parameter
// type are dropped, and if the candidate type filter rejects any observed
// descriptor the whole position yields nothing.
func (p *MethodProfile) CandidatesForParameter(i int) []Entry {
	data := p.DataForParameter(i)
	declared := p.method.PositionType(i)

	candidates := data[:0]
	for _, e := range data {
		hasType := e.Value.HasTypeInformation()
		if !hasType && p.candidateType == CandidatesTypesOnly {
			return nil
		}
		if hasType && p.candidateType == CandidatesValuesOnly {
			return nil
		}
		if hasType && declared != nil && e.Value.TypeRef() == declared {
			continue
		}
		candidates = append(candidates, e)
	}
	return candidates
}

func (p *MethodProfile) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "------ START PROFILE of %s , %s\n", p.method.Name, p.method.Signature())
	for i := range p.positions {
		fmt.Fprintf(&sb, "Parameter %d", i)
		if i == 0 && !p.method.Static {
			sb.WriteString(" (implicit this) ")
		}
		sb.WriteString(": ")
		for _, e := range p.DataForParameter(i) {
			fmt.Fprintf(&sb, "%s | ", e)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("------ END PROFILE\n")
	return sb.String()
}
