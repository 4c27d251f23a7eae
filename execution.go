package taskz

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Dispatch selects how a bridge hands control to the next task.
type Dispatch int

const (
	// DispatchDirect runs the successor inside the reporting task's call
	// stack. Code after a report in Run executes once the rest of the
	// chain has unwound. Stack depth grows with chain length.
	DispatchDirect Dispatch = iota

	// DispatchIterative queues the successor and lets the pipeline run it
	// after the reporting task returns. Stack depth stays constant. The
	// order of Finish, SetInput and Run calls is the same as DispatchDirect.
	DispatchIterative
)

// String returns the dispatch mode label.
func (d Dispatch) String() string {
	if d == DispatchIterative {
		return "iterative"
	}
	return "direct"
}

type executionKey struct{}

type frameKey struct{}

// frame describes the invocation a context belongs to. The path up to a
// step is read back from the execution, so frames stay constant size.
type frame struct {
	step int
}

// monitor receives execution progress. Pipeline implements it.
type monitor interface {
	stepStarted(ctx context.Context, name Name, step int) (context.Context, func())
	stepReported(ctx context.Context, name Name, step int, outcome Outcome)
	faulted(ctx context.Context, err error)
}

// execution is the per-run record shared by every task in one chain run.
// It travels in the context so bridges and tasks never hold it directly.
type execution struct {
	base     context.Context
	monitor  monitor
	name     Name
	queue    []func(context.Context)
	path     []Name
	faults   []error
	mu       sync.Mutex
	dispatch Dispatch
	steps    int
	terminal int
	final    Outcome
}

func newExecution(name Name, dispatch Dispatch, m monitor) *execution {
	return &execution{name: name, dispatch: dispatch, monitor: m}
}

// withExecution binds e to ctx. The returned context becomes the base that
// queued invocations start from.
func withExecution(ctx context.Context, e *execution) context.Context {
	ctx = context.WithValue(ctx, executionKey{}, e)
	e.base = ctx
	return ctx
}

func executionFrom(ctx context.Context) *execution {
	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(executionKey{}).(*execution)
	return e
}

func frameFrom(ctx context.Context) frame {
	if ctx == nil {
		return frame{}
	}
	f, _ := ctx.Value(frameKey{}).(frame)
	return f
}

// CurrentStep returns the 1-based position of the current invocation
// within its execution, or 0 when ctx does not belong to a task invocation
// started by Start or Pipeline.Run.
func CurrentStep(ctx context.Context) int {
	return frameFrom(ctx).step
}

// Path returns the names of the tasks invoked so far in this execution, up
// to and including the current one.
func Path(ctx context.Context) []Name {
	return executionFrom(ctx).pathTo(frameFrom(ctx).step)
}

// PipelineName returns the name of the pipeline running the current
// invocation. Chains started with Start are named after their head task.
func PipelineName(ctx context.Context) Name {
	if e := executionFrom(ctx); e != nil {
		return e.name
	}
	return ""
}

// enter registers a new invocation and returns its frame.
func (e *execution) enter(name Name) frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps++
	e.path = append(e.path, name)
	return frame{step: e.steps}
}

// pathTo returns a copy of the first step names. Safe on a nil execution.
func (e *execution) pathTo(step int) []Name {
	if e == nil || step <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.path[:min(step, len(e.path))])
}

// schedule queues fn when dispatch is iterative. It reports false when the
// caller should run fn itself. Queued functions receive the execution's
// base context, not the reporting step's, so context depth stays flat.
func (e *execution) schedule(fn func(context.Context)) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dispatch != DispatchIterative {
		return false
	}
	e.queue = append(e.queue, fn)
	return true
}

// drain runs queued invocations until none remain.
func (e *execution) drain() {
	e.mu.Lock()
	base := e.base
	e.mu.Unlock()

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next(base)
	}
}

// fault records a contract violation. Safe on a nil execution.
func (e *execution) fault(ctx context.Context, err error) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.faults = append(e.faults, err)
	m := e.monitor
	e.mu.Unlock()
	if m != nil {
		m.faulted(ctx, err)
	}
}

// reported forwards a task outcome to the monitor.
func (e *execution) reported(ctx context.Context, name Name, outcome Outcome) {
	if e == nil || e.monitor == nil {
		return
	}
	e.monitor.stepReported(ctx, name, CurrentStep(ctx), outcome)
}

// claimTerminal records a final outcome. Only the first claim succeeds.
// Without an execution every claim succeeds.
func (e *execution) claimTerminal(outcome Outcome) bool {
	if e == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminal++
	if e.terminal > 1 {
		return false
	}
	e.final = outcome
	return true
}

// resolution returns the final outcome and whether one was delivered.
func (e *execution) resolution() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.final, e.terminal > 0
}

// stepCount returns how many invocations ran.
func (e *execution) stepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// err joins every recorded fault.
func (e *execution) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.faults...)
}
