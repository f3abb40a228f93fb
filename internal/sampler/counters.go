package sampler

import (
	"sync/atomic"

	"github.com/mabhi256/paramspec/internal/model"
)

// SkipCause tags why a yieldpoint did not produce a sample.
type SkipCause int

const (
	SkipNoMethod SkipCause = iota
	SkipIrrelevant
	SkipOptCompiled
	SkipIneligible
	SkipNonPrologue
	SkipVMMethod
	SkipOrganizerBusy
	SkipBufferExhausted
	SkipStackWalk

	skipCauseCount
)

func (c SkipCause) String() string {
	switch c {
	case SkipNoMethod:
		return "no-method"
	case SkipIrrelevant:
		return "outdated/native"
	case SkipOptCompiled:
		return "opt-compiled"
	case SkipIneligible:
		return "ineligible"
	case SkipNonPrologue:
		return "non-prologue"
	case SkipVMMethod:
		return "vm-method"
	case SkipOrganizerBusy:
		return "organizer-busy"
	case SkipBufferExhausted:
		return "buffer-exhausted"
	case SkipStackWalk:
		return "stack-walk"
	default:
		return "unknown"
	}
}

// SkipCauses lists every cause in reporting order.
func SkipCauses() []SkipCause {
	causes := make([]SkipCause, skipCauseCount)
	for i := range causes {
		causes[i] = SkipCause(i)
	}
	return causes
}

// counters are diagnostics only. They persist across sampling windows.
type counters struct {
	reasons    [4]atomic.Int64
	optReasons [4]atomic.Int64
	skipped    [skipCauseCount]atomic.Int64
	taken      atomic.Int64
	windows    atomic.Int64
}

func (c *counters) skip(cause SkipCause) {
	c.skipped[cause].Add(1)
}

// Counters is a point-in-time copy of the sampler's diagnostics.
type Counters struct {
	Prologue         int64
	Backedge         int64
	Epilogue         int64
	OtherYieldpoints int64

	SkippedOptPrologue int64
	SkippedOptBackedge int64
	SkippedOptEpilogue int64

	Skipped map[SkipCause]int64
	Taken   int64
	Windows int64
}

func (c *counters) snapshot() Counters {
	snap := Counters{
		Prologue:           c.reasons[model.ReasonPrologue].Load(),
		Backedge:           c.reasons[model.ReasonBackedge].Load(),
		Epilogue:           c.reasons[model.ReasonEpilogue].Load(),
		OtherYieldpoints:   c.reasons[model.ReasonOther].Load(),
		SkippedOptPrologue: c.optReasons[model.ReasonPrologue].Load(),
		SkippedOptBackedge: c.optReasons[model.ReasonBackedge].Load(),
		SkippedOptEpilogue: c.optReasons[model.ReasonEpilogue].Load(),
		Skipped:            make(map[SkipCause]int64, skipCauseCount),
		Taken:              c.taken.Load(),
		Windows:            c.windows.Load(),
	}
	for i := range c.skipped {
		snap.Skipped[SkipCause(i)] = c.skipped[i].Load()
	}
	return snap
}

func (c Counters) TotalSkipped() int64 {
	var total int64
	for _, n := range c.Skipped {
		total += n
	}
	return total
}

// TotalPotentialSamples counts prologue yieldpoints in baseline code plus the
// samples lost because the organizer was busy.
func (c Counters) TotalPotentialSamples() int64 {
	return (c.Prologue - c.SkippedOptPrologue) + c.Skipped[SkipOrganizerBusy]
}

// SkippedRest counts skips not explained by the organizer being busy, opt
// code or non-prologue yieldpoints.
func (c Counters) SkippedRest() int64 {
	return c.TotalSkipped() - c.Skipped[SkipOrganizerBusy] - c.Skipped[SkipOptCompiled] -
		(c.Backedge - c.SkippedOptBackedge) - (c.Epilogue - c.SkippedOptEpilogue) - c.OtherYieldpoints
}

// ReportLine is one named counter in the sampler report.
type ReportLine struct {
	Name        string
	Value       int64
	Description string
}

func (c Counters) Lines() []ReportLine {
	return []ReportLine{
		{"TOTAL_POTENTIAL_SAMPLES", c.TotalPotentialSamples(), "prologue yieldpoints in baseline compiled methods"},
		{"SKIPPED_ORGANIZER_BUSY", c.Skipped[SkipOrganizerBusy], "organizer was processing the current buffer"},
		{"SAMPLES_PROLOGUE", c.Prologue, "prologue yieldpoints, taken or not"},
		{"SAMPLES_BACKEDGE", c.Backedge, "backedge yieldpoints, taken or not"},
		{"SAMPLES_EPILOGUE", c.Epilogue, "epilogue yieldpoints, taken or not"},
		{"SKIPPED_SAMPLES_PROLOGUE_OPT", c.SkippedOptPrologue, "prologue yieldpoints in opt-compiled methods"},
		{"SKIPPED_SAMPLES_BACKEDGE_OPT", c.SkippedOptBackedge, "backedge yieldpoints in opt-compiled methods"},
		{"SKIPPED_SAMPLES_EPILOGUE_OPT", c.SkippedOptEpilogue, "epilogue yieldpoints in opt-compiled methods"},
		{"SKIPPED_OTHER_YIELDPOINTS", c.OtherYieldpoints, "uninteresting yieldpoints"},
		{"SKIPPED_OPT", c.Skipped[SkipOptCompiled], "methods were opt-compiled"},
		{"SKIPPED_BUFFER_EXHAUSTED", c.Skipped[SkipBufferExhausted], "no buffer space or sample slot left"},
		{"SKIPPED_STACK_WALK", c.Skipped[SkipStackWalk], "walked past the stack sentinel"},
		{"TOTAL_SKIPPED_REST", c.SkippedRest(), "other reasons"},
		{"TOTAL_TAKEN_SAMPLES", c.Taken, "samples taken"},
	}
}
