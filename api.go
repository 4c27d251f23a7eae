package taskz

import "context"

// Name is a type alias for task, bridge and pipeline names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    QueryOrderName   taskz.Name = "query-order"
//	    ReserveStockName taskz.Name = "reserve-stock"
//	)
type Name = string

// Outcome classifies how a task concluded an invocation.
type Outcome int

// Task outcomes.
const (
	Success Outcome = iota
	Failure
)

// String returns the lowercase outcome label used in spans, events and schemas.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Runner holds the logic of a task. Run reads the input from the task and
// must conclude with exactly one of task.ReportSuccess or task.ReportFailure.
// Both carry an O-typed payload: failure is a normal outcome, not a Go error,
// so a failing runner can still hand diagnostic state downstream.
//
//	type QueryOrder struct{}
//
//	func (QueryOrder) Run(ctx context.Context, t *taskz.Task[int, Order]) {
//	    id := t.Input()
//	    if id%2 != 0 {
//	        t.ReportFailure(ctx, Order{ID: id, Status: "NOT_FOUND"})
//	        return
//	    }
//	    t.ReportSuccess(ctx, Order{ID: id})
//	}
type Runner[I, O any] interface {
	Run(ctx context.Context, task *Task[I, O])
}

// Finisher is implemented by runners that want the post-outcome hook.
// The bridge calls Finish after the outcome is decided and before any
// successor runs. Finish must not progress the chain.
type Finisher[O any] interface {
	Finish(ctx context.Context, output O)
}

// Aborter is implemented by runners that want to see an abort reach their
// task through a Gated bridge. The task does not run; Aborted may still
// report a final outcome through an embedded Terminal.
type Aborter interface {
	Aborted(ctx context.Context)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc[I, O any] func(ctx context.Context, task *Task[I, O])

// Run implements Runner.
func (f RunnerFunc[I, O]) Run(ctx context.Context, task *Task[I, O]) {
	f(ctx, task)
}

// Listener receives the final outcome of a pipeline execution.
// A correctly authored pipeline delivers exactly one call per execution;
// the library suppresses anything past the first.
type Listener[F any] interface {
	Success(ctx context.Context, result F)
	Failed(ctx context.Context, result F)
}

// ListenerFunc adapts a pair of functions to the Listener interface.
// Either function may be nil.
type ListenerFunc[F any] struct {
	OnSuccess func(context.Context, F)
	OnFailed  func(context.Context, F)
}

// Success implements Listener.
func (l ListenerFunc[F]) Success(ctx context.Context, result F) {
	if l.OnSuccess != nil {
		l.OnSuccess(ctx, result)
	}
}

// Failed implements Listener.
func (l ListenerFunc[F]) Failed(ctx context.Context, result F) {
	if l.OnFailed != nil {
		l.OnFailed(ctx, result)
	}
}
