package taskz

import (
	"context"
)

// Apply creates a task from a function that produces a payload and may fail.
// A nil error reports success with the result; a non-nil error reports
// failure with the result the function returned alongside it, so the
// function decides what a failed payload carries.
//
// Apply is the quickest way to write a task that does not need a Finish
// hook or a terminal listener:
//
//	query := taskz.Apply(QueryName, func(ctx context.Context, id int) (Order, error) {
//	    if id%2 != 0 {
//	        return Order{ID: id, Status: "NOT_FOUND"}, ErrNotFound
//	    }
//	    return Order{ID: id, Amount: id}, nil
//	})
//
// The error itself is not propagated. Failure is an outcome, and the policy
// on the outbound bridge decides what happens next.
func Apply[I, O any](name Name, fn func(context.Context, I) (O, error)) *Task[I, O] {
	return New[I, O](name, RunnerFunc[I, O](func(ctx context.Context, t *Task[I, O]) {
		result, err := fn(ctx, t.Input())
		if err != nil {
			t.ReportFailure(ctx, result)
			return
		}
		t.ReportSuccess(ctx, result)
	}))
}

// Transform creates a task from a function that always succeeds.
//
//	double := taskz.Transform("double", func(_ context.Context, n int) int {
//	    return n * 2
//	})
func Transform[I, O any](name Name, fn func(context.Context, I) O) *Task[I, O] {
	return New[I, O](name, RunnerFunc[I, O](func(ctx context.Context, t *Task[I, O]) {
		t.ReportSuccess(ctx, fn(ctx, t.Input()))
	}))
}

// Decide creates a task from a function that chooses its own outcome.
func Decide[I, O any](name Name, fn func(context.Context, I) (O, Outcome)) *Task[I, O] {
	return New[I, O](name, RunnerFunc[I, O](func(ctx context.Context, t *Task[I, O]) {
		result, outcome := fn(ctx, t.Input())
		if outcome == Success {
			t.ReportSuccess(ctx, result)
			return
		}
		t.ReportFailure(ctx, result)
	}))
}

// FinishFunc wraps a runner with a Finish hook.
//
//	audited := taskz.New[Order, Reservation](ReserveName, taskz.FinishFunc[Order, Reservation](
//	    &Reserve{Limit: 150},
//	    func(ctx context.Context, r Reservation) { audit.Record(r) },
//	))
func FinishFunc[I, O any](runner Runner[I, O], finish func(context.Context, O)) Runner[I, O] {
	return &finishing[I, O]{Runner: runner, finish: finish}
}

type finishing[I, O any] struct {
	Runner[I, O]
	finish func(context.Context, O)
}

func (f *finishing[I, O]) Finish(ctx context.Context, output O) {
	if inner, ok := f.Runner.(Finisher[O]); ok {
		inner.Finish(ctx, output)
	}
	if f.finish != nil {
		f.finish(ctx, output)
	}
}
