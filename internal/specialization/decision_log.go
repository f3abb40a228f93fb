package specialization

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// DecisionLog collects every decision for a dump at shutdown. Decisions may
// still arrive while it is being written.
type DecisionLog struct {
	mu        sync.Mutex
	decisions []Decision
}

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

func (l *DecisionLog) Add(d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *DecisionLog) Decisions() []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Decision(nil), l.decisions...)
}

func (l *DecisionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.decisions)
}

func (l *DecisionLog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	write := func(s string) {
		written, _ := bw.WriteString(s)
		n += int64(written)
	}

	write("Begin of specialization decisions.\n")
	for _, d := range l.Decisions() {
		write(d.String())
	}
	write("End of specialization decisions.\n")
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("write decision log: %w", err)
	}
	return n, nil
}
