package taskz

import (
	"context"
	"sync"
	"time"
)

// outlet receives the outcome of the task that owns it. Bridges implement it.
type outlet[O any] interface {
	deliver(ctx context.Context, outcome Outcome, output O)
	abort(ctx context.Context)
	link() (Policy, node)
}

// Task is a unit of work with a typed input I and a typed output O.
//
// A Task pairs a Runner (the concrete logic) with the state the library
// needs: the name, the current input and at most one outbound bridge.
// Bridges connect a *Task[I, O] to a *Task[O, X], so the compiler checks
// every hand-off in a chain:
//
//	query := taskz.New[int, Order](QueryOrderName, QueryOrder{})
//	reserve := taskz.New[Order, Reservation](ReserveStockName, &ReserveStock{Limit: 150})
//	check := taskz.New[Reservation, Result](CheckName, &Check{})
//
//	taskz.Follow(taskz.Then(query, reserve), check)
//
// The chain is a singly linked list: attaching a second bridge replaces the
// first. Bridges reference the next task without owning it; whoever built
// the tasks owns them.
type Task[I, O any] struct {
	input   I
	runner  Runner[I, O]
	outlet  outlet[O]
	name    Name
	mu      sync.RWMutex
	reports int
}

// New creates a task named name whose logic is runner.
func New[I, O any](name Name, runner Runner[I, O]) *Task[I, O] {
	return &Task[I, O]{name: name, runner: runner}
}

// Name returns the task name.
func (t *Task[I, O]) Name() Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// Runner returns the logic behind the task.
func (t *Task[I, O]) Runner() Runner[I, O] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runner
}

// SetInput stores the value for the next Run.
// Bridges call it automatically; the head of a chain is set by the caller.
func (t *Task[I, O]) SetInput(input I) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = input
}

// Input returns the value stored by the last SetInput.
func (t *Task[I, O]) Input() I {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.input
}

// Run executes the runner once against the stored input. Every call is a
// new invocation that may report once, so running twice after one SetInput
// forwards two outcomes.
//
// Calling Run directly gives the bare contract with no bookkeeping. Start
// and Pipeline.Run additionally number the steps, recover panics and
// record contract violations.
func (t *Task[I, O]) Run(ctx context.Context) {
	t.mu.Lock()
	t.reports = 0
	runner := t.runner
	t.mu.Unlock()
	runner.Run(ctx, t)
}

// Finish calls the runner's Finish hook, if it has one.
func (t *Task[I, O]) Finish(ctx context.Context, output O) {
	if f, ok := t.Runner().(Finisher[O]); ok {
		f.Finish(ctx, output)
	}
}

// Linked reports whether a bridge is attached.
func (t *Task[I, O]) Linked() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outlet != nil
}

// ReportSuccess concludes the invocation successfully and hands output to
// the attached bridge. Without a bridge the call ends the chain.
func (t *Task[I, O]) ReportSuccess(ctx context.Context, output O) {
	t.report(ctx, Success, output)
}

// ReportFailure concludes the invocation with a failure payload and hands
// it to the attached bridge, whose policy decides whether the chain goes on.
func (t *Task[I, O]) ReportFailure(ctx context.Context, output O) {
	t.report(ctx, Failure, output)
}

// Abort concludes the invocation with a failure that carries no payload.
// The current task's Finish is not called. A Gated bridge passes the abort
// to its successor without running it, and the successor passes it on the
// same way; runners implementing Aborter observe it as it goes by. Any
// other policy stops the abort at its bridge.
func (t *Task[I, O]) Abort(ctx context.Context) {
	if out := t.conclude(ctx, Failure); out != nil {
		out.abort(ctx)
	}
}

func (t *Task[I, O]) report(ctx context.Context, outcome Outcome, output O) {
	if out := t.conclude(ctx, outcome); out != nil {
		out.deliver(ctx, outcome, output)
	}
}

// conclude counts a report against the current invocation and returns the
// outlet to hand it to, or nil when the chain ends here.
func (t *Task[I, O]) conclude(ctx context.Context, outcome Outcome) outlet[O] {
	t.mu.Lock()
	t.reports++
	count := t.reports
	out := t.outlet
	input := t.input
	t.mu.Unlock()

	exec := executionFrom(ctx)
	if count > 1 {
		// Not forwarded: the first report already decided the chain.
		exec.fault(ctx, t.fault(ctx, input, ErrDuplicateOutcome))
		return nil
	}
	exec.reported(ctx, t.Name(), outcome)
	return out
}

// cascade receives an abort passed on by the previous bridge. The task does
// not run. Inside an execution a panicking Aborted hook is recorded and
// stops the abort.
func (t *Task[I, O]) cascade(ctx context.Context) {
	t.mu.RLock()
	runner, out := t.runner, t.outlet
	t.mu.RUnlock()

	if a, ok := runner.(Aborter); ok {
		if exec := executionFrom(ctx); exec != nil {
			defer func() {
				if r := recover(); r != nil {
					var zero I
					exec.fault(ctx, t.fault(ctx, zero, &panicError{
						taskName:  t.Name(),
						sanitized: sanitizePanicMessage(r),
					}))
				}
			}()
		}
		a.Aborted(ctx)
	}

	if out != nil {
		out.abort(ctx)
	}
}

// attach installs the outbound bridge, replacing any previous one.
func (t *Task[I, O]) attach(out outlet[O]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outlet = out
}

// outcomes returns the number of reports made in the current invocation.
func (t *Task[I, O]) outcomes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reports
}

func (t *Task[I, O]) fault(ctx context.Context, input I, err error) *Error[I] {
	f := frameFrom(ctx)
	path := executionFrom(ctx).pathTo(f.step)
	if len(path) == 0 {
		path = []Name{t.Name()}
	}
	return &Error[I]{
		Timestamp: time.Now(),
		InputData: input,
		Err:       err,
		Path:      path,
		Step:      f.step,
	}
}

// next implements node for schema walks.
func (t *Task[I, O]) next() (Policy, node, bool) {
	t.mu.RLock()
	out := t.outlet
	t.mu.RUnlock()
	if out == nil {
		return nil, nil, false
	}
	policy, n := out.link()
	return policy, n, true
}

// invoke runs one invocation of t: SetInput, then Run. Inside an execution
// it also numbers the step, recovers panics and checks that Run reported.
func invoke[I, O any](ctx context.Context, t *Task[I, O], input I) {
	exec := executionFrom(ctx)
	if exec == nil {
		t.SetInput(input)
		t.Run(ctx)
		return
	}

	name := t.Name()
	f := exec.enter(name)
	ctx = context.WithValue(ctx, frameKey{}, f)
	if exec.monitor != nil {
		var done func()
		ctx, done = exec.monitor.stepStarted(ctx, name, f.step)
		defer done()
	}

	defer func() {
		if r := recover(); r != nil {
			exec.fault(ctx, t.fault(ctx, input, &panicError{
				taskName:  name,
				sanitized: sanitizePanicMessage(r),
			}))
		}
	}()

	t.SetInput(input)
	t.Run(ctx)

	if t.outcomes() == 0 {
		exec.fault(ctx, t.fault(ctx, input, ErrNoOutcome))
	}
}

// Start runs the chain beginning at head with input, using direct dispatch.
// It returns the contract violations raised during the run, joined, or nil.
// Wiring that loops back onto itself is rejected with ErrCycle before any
// task runs.
// Final outcomes still reach whatever listeners the tasks carry, and only
// the first one per run is delivered.
//
// Start is the minimal way to run a chain without a Pipeline:
//
//	taskz.Follow(taskz.Then(query, reserve), check)
//	if err := taskz.Start(ctx, query, 100); err != nil {
//	    return err
//	}
func Start[I, O any](ctx context.Context, head *Task[I, O], input I) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := describe(head.Name(), head); err != nil {
		return &Error[I]{
			Timestamp: time.Now(),
			InputData: input,
			Err:       err,
			Path:      []Name{head.Name()},
		}
	}
	exec := newExecution(head.Name(), DispatchDirect, nil)
	invoke(withExecution(ctx, exec), head, input)
	exec.drain()
	return exec.err()
}
