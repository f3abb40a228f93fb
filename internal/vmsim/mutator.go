package vmsim

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/vm"
)

// YieldpointHandler is called by mutator threads at yieldpoints.
type YieldpointHandler interface {
	Update(fp vm.FramePointer, reason model.Reason)
}

// Call is one invocation a mutator performs.
type Call struct {
	Method    *model.CompiledMethod
	Receiver  vm.ObjectRef
	Args      []Value
	Backedges int
}

// CallSource produces the next invocation for a mutator thread. It is called
// concurrently with a per-thread random source.
type CallSource func(rng *rand.Rand) Call

type MutatorOptions struct {
	Threads     int
	Invocations int // per thread
	Seed        uint64
}

// RunMutators starts opts.Threads goroutines that each perform
// opts.Invocations calls drawn from next, reporting every prologue, backedge
// and epilogue yieldpoint to h. It stops early when ctx is cancelled.
func RunMutators(ctx context.Context, stack *Stack, h YieldpointHandler, next CallSource, opts MutatorOptions) error {
	if opts.Threads <= 0 {
		return fmt.Errorf("mutator threads must be positive, got %d", opts.Threads)
	}

	g, ctx := errgroup.WithContext(ctx)
	for t := range opts.Threads {
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(t)))
		g.Go(func() error {
			for i := range opts.Invocations {
				if i%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				invoke(stack, h, next(rng))
			}
			return nil
		})
	}
	return g.Wait()
}

func invoke(stack *Stack, h YieldpointHandler, call Call) {
	fp := stack.Push(call.Method, call.Receiver, call.Args...)
	defer stack.Pop(fp)

	h.Update(fp, model.ReasonPrologue)
	for range call.Backedges {
		h.Update(fp, model.ReasonBackedge)
	}
	h.Update(fp, model.ReasonEpilogue)
}
