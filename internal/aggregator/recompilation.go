package aggregator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mabhi256/paramspec/internal/model"
)

// RecompilationMonitor records the opt level of each method's first
// optimizing compile and every recompilation after it.
type RecompilationMonitor struct {
	mu             sync.Mutex
	initial        map[*model.Method]int
	recompilations map[*model.Method][]int
	total          int
}

func NewRecompilationMonitor() *RecompilationMonitor {
	return &RecompilationMonitor{
		initial:        make(map[*model.Method]int),
		recompilations: make(map[*model.Method][]int),
	}
}

func (r *RecompilationMonitor) NotifyOptCompile(m *model.Method, optLevel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if _, seen := r.initial[m]; !seen {
		r.initial[m] = optLevel
		return
	}
	r.recompilations[m] = append(r.recompilations[m], optLevel)
}

// Recompilations returns the opt levels m was recompiled at, oldest first.
func (r *RecompilationMonitor) Recompilations(m *model.Method) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.recompilations[m]...)
}

func (r *RecompilationMonitor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initial = make(map[*model.Method]int)
	r.recompilations = make(map[*model.Method][]int)
	r.total = 0
}

// Report renders tab separated lines: totals first, then per-method initial
// levels and recompilations ordered by method id.
func (r *RecompilationMonitor) Report() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	methods := make([]*model.Method, 0, len(r.initial))
	for m := range r.initial {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].ID < methods[j].ID })

	lines := []string{
		fmt.Sprintf("TOTAL_OPT_COMPILATIONS\t%d", r.total),
		fmt.Sprintf("TOTAL_OPT_METHOD_COUNT\t%d", len(r.initial)),
	}
	for _, m := range methods {
		lines = append(lines, fmt.Sprintf("INITIAL_OPT_COMPILE\t%s\t%d", m, r.initial[m]))
	}
	for _, m := range methods {
		levels := r.recompilations[m]
		if len(levels) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("RECOMPILE_COUNT\t%s\t%d", m, len(levels)))
		for _, level := range levels {
			lines = append(lines, fmt.Sprintf("RECOMPILE\t%s\t%d", m, level))
		}
	}
	return lines
}
