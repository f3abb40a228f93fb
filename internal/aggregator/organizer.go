// Package aggregator turns a full sample buffer into per-method parameter
// profiles.
package aggregator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/mabhi256/paramspec/internal/encoding"
	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/sampler"
)

var ErrIntegrity = errors.New("sample buffer encodings and decodings do not match")

// Source is the sampling side the organizer drains. *sampler.Sampler
// implements it.
type Source interface {
	Buffer() *encoding.Buffer
	Slots() ([]*model.Method, []int32)
	Reset()
	Activate()
	IsActive() bool
	PassivateIfIdle() bool
	Counters() sampler.Counters
}

type Options struct {
	// Summarized folds samples into one MethodProfile per method. Without
	// it every invocation is kept as a ParameterProfile.
	Summarized    bool
	CandidateType profile.CandidateType

	VerifyAssertions bool
}

// Organizer is the single consumer of the sample buffer. Producers wake it
// through Activate; Run processes one window per wake-up.
type Organizer struct {
	opts   Options
	source Source
	types  encoding.TypeLookup
	log    *slog.Logger

	mu       sync.RWMutex
	profiles *btree.BTreeG[*methodProfiles]

	// processing keeps Run and Flush from draining the buffer at once.
	processing sync.Mutex
	wake       chan struct{}
	passes     atomic.Int64
	broken     atomic.Int64

	// stackWalkReported is guarded by processing.
	stackWalkReported bool

	// Fatal handles integrity failures when VerifyAssertions is set.
	Fatal func(error)
}

func New(opts Options, source Source, types encoding.TypeLookup, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Organizer{
		opts:     opts,
		source:   source,
		types:    types,
		log:      logger.With("component", "organizer"),
		profiles: newStore(),
		wake:     make(chan struct{}, 1),
		Fatal:    func(err error) { panic(err) },
	}
}

// Activate schedules processing of the current window. It never blocks and
// is safe to call while the sampler holds its locks.
func (o *Organizer) Activate() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run processes windows as they fill up until ctx is done.
func (o *Organizer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
			o.ThresholdReached()
		}
	}
}

// Flush closes the current window early and processes whatever was sampled.
// It returns false when producers are still inside the sampler.
func (o *Organizer) Flush() bool {
	o.processing.Lock()
	defer o.processing.Unlock()
	if o.source.IsActive() && !o.source.PassivateIfIdle() {
		return false
	}
	o.process()
	return true
}

// ThresholdReached decodes every sample of the window into profiles, checks
// that the buffer was read back exactly as written, and opens the next
// window.
//
// The window must be closed with no producer inside; a wake-up that finds the
// window open is ignored.
func (o *Organizer) ThresholdReached() {
	o.processing.Lock()
	defer o.processing.Unlock()
	if o.source.IsActive() {
		return
	}
	o.process()
}

func (o *Organizer) process() {
	buf := o.source.Buffer()
	buf.SwitchToDecodeMode()

	methods, starts := o.source.Slots()
	touched := make(map[*model.Method]struct{})
	samples := 0
	for index, start := range starts {
		if start == sampler.NoEntry {
			continue
		}
		m := methods[index]
		if m == nil {
			continue
		}

		var rec profile.Recorder
		var single *profile.ParameterProfile
		if o.opts.Summarized {
			rec = o.summarizedProfile(m)
		} else {
			single = profile.NewParameterProfile(m)
			rec = single
		}
		o.decodeSample(buf, int(start), m, rec)
		if single != nil {
			o.addSample(m, single)
		}
		touched[m] = struct{}{}
		samples++
	}

	if err := o.checkIntegrity(buf); err != nil {
		o.broken.Add(1)
		for m := range touched {
			o.Discard(m)
		}
		if o.opts.VerifyAssertions {
			o.Fatal(err)
		} else {
			o.log.Warn("discarded profiles from inconsistent window", "error", err, "methods", len(touched))
		}
	}
	o.reportStackWalks()

	o.passes.Add(1)
	o.log.Debug("window processed", "pass", o.passes.Load(), "samples", samples, "methods", len(touched))

	o.source.Reset()
	o.source.Activate()
}

// reportStackWalks warns the first time the sampler has dropped samples for
// frames at the stack end. Under verification those are fatal in the sampler.
func (o *Organizer) reportStackWalks() {
	if o.opts.VerifyAssertions || o.stackWalkReported {
		return
	}
	if n := o.source.Counters().Skipped[sampler.SkipStackWalk]; n > 0 {
		o.stackWalkReported = true
		o.log.Warn("samples skipped at the stack end", "count", n)
	}
}

func (o *Organizer) decodeSample(buf *encoding.Buffer, offset int, m *model.Method, rec profile.Recorder) {
	if !m.Static {
		t, _ := buf.DecodeType(offset, o.types)
		rec.AddType(t)
		offset += model.KindReference.Size()
	}
	for _, p := range m.Params {
		switch p.Kind {
		case model.KindReference:
			t, _ := buf.DecodeType(offset, o.types)
			rec.AddType(t)
		case model.KindBoolean:
			rec.AddBoolean(buf.DecodeBoolean(offset))
		case model.KindByte:
			rec.AddByte(buf.DecodeByte(offset))
		case model.KindChar:
			rec.AddChar(buf.DecodeChar(offset))
		case model.KindShort:
			rec.AddShort(buf.DecodeShort(offset))
		case model.KindInt:
			rec.AddInt(buf.DecodeInt(offset))
		case model.KindLong:
			rec.AddLong(buf.DecodeLong(offset))
		case model.KindFloat:
			rec.AddFloat(buf.DecodeFloat(offset))
		case model.KindDouble:
			rec.AddDouble(buf.DecodeDouble(offset))
		}
		offset += p.Kind.Size()
	}
}

func (o *Organizer) checkIntegrity(buf *encoding.Buffer) error {
	if flag := buf.ErrorFlag(); flag != encoding.NoError {
		return fmt.Errorf("%w: decoder error %s", ErrIntegrity, flag)
	}
	if !buf.BalanceMatches() {
		return fmt.Errorf("%w: balance is %d", ErrIntegrity, buf.Balance())
	}
	return nil
}

func (o *Organizer) summarizedProfile(m *model.Method) *profile.MethodProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	if mp, ok := o.profiles.Get(key(m)); ok && mp.summary != nil {
		return mp.summary
	}
	mp := &methodProfiles{method: m, summary: profile.NewMethodProfile(m, o.opts.CandidateType)}
	o.profiles.ReplaceOrInsert(mp)
	return mp.summary
}

func (o *Organizer) addSample(m *model.Method, p *profile.ParameterProfile) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mp, ok := o.profiles.Get(key(m))
	if !ok {
		mp = key(m)
		o.profiles.ReplaceOrInsert(mp)
	}
	if !mp.tryMerge(p) {
		mp.samples = append(mp.samples, p)
	}
}

func (o *Organizer) ProfileAvailable(m *model.Method) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profiles.Has(key(m))
}

// Profile returns the summarized profile of m, or nil.
func (o *Organizer) Profile(m *model.Method) *profile.MethodProfile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mp, ok := o.profiles.Get(key(m)); ok {
		return mp.summary
	}
	return nil
}

// Samples returns the unsummarized profiles of m.
func (o *Organizer) Samples(m *model.Method) []*profile.ParameterProfile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mp, ok := o.profiles.Get(key(m)); ok {
		return append([]*profile.ParameterProfile(nil), mp.samples...)
	}
	return nil
}

// Discard throws away everything collected for m.
func (o *Organizer) Discard(m *model.Method) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.profiles.Delete(key(m))
}

// Methods lists every method with profile data, ordered by method id.
func (o *Organizer) Methods() []*model.Method {
	o.mu.RLock()
	defer o.mu.RUnlock()
	methods := make([]*model.Method, 0, o.profiles.Len())
	o.profiles.Ascend(func(mp *methodProfiles) bool {
		methods = append(methods, mp.method)
		return true
	})
	return methods
}

func (o *Organizer) Passes() int64 { return o.passes.Load() }

// IntegrityFailures counts windows whose buffer did not decode cleanly.
func (o *Organizer) IntegrityFailures() int64 { return o.broken.Load() }

// WriteProfiles dumps every profile as text, one method after another in id
// order.
func (o *Organizer) WriteProfiles(w io.Writer) error {
	o.mu.RLock()
	var sections [][]string
	o.profiles.Ascend(func(mp *methodProfiles) bool {
		var lines []string
		if mp.summary != nil {
			lines = append(lines, mp.summary.String())
		}
		for _, p := range mp.samples {
			lines = append(lines, p.String()+"\n")
		}
		sort.Strings(lines)
		sections = append(sections, lines)
		return true
	})
	count := o.profiles.Len()
	o.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Parameter profile count: %d\n", count)
	bw.WriteString("Parameter profiles:\n")
	for _, lines := range sections {
		for _, l := range lines {
			bw.WriteString(l)
		}
	}
	bw.WriteString("DONE WITH PROFILES\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}
