// Package taskz provides type-safe task chaining for Go.
//
// # Overview
//
// taskz wires small units of work into a linear chain where each task's
// output type is the next task's input type, checked at compile time. Tasks
// report an outcome (success or failure) together with a payload, and the
// bridge between two tasks decides, through its policy, whether the next
// task runs. Any task can also conclude the whole pipeline by reporting a
// final result to a shared listener.
//
// # Core Concepts
//
//   - Task[I, O]: a named unit of work. It holds the input set by the
//     previous step and delegates to a Runner.
//   - Runner[I, O]: the logic. Run reads t.Input() and calls exactly one of
//     t.ReportSuccess or t.ReportFailure. Runners may also implement
//     Finisher[O] to observe their own outcome before the chain moves on.
//   - Bridge[I, O, X]: connects a *Task[I, O] to a *Task[O, X]. It calls
//     Finish on the reporting task, asks its Policy, and either forwards the
//     payload or truncates the chain.
//   - Policy: Gated forwards only successes (Then). Unconditional forwards
//     both outcomes (Follow). NewPolicy builds custom ones.
//   - Abort: a failure with no payload. Gated bridges pass it down the
//     chain without running anything, so runners implementing Aborter can
//     react; Unconditional bridges stop it.
//   - Terminal[F]: embedded in runners that may end the pipeline with a
//     final result F, delivered to a Listener[F].
//   - Pipeline[I, F]: the assembled chain plus its listener. It numbers
//     steps, recovers panics, detects contract violations and exposes
//     metrics, traces and hooks.
//
// # Execution Order
//
// For a bridge from A to B, reporting on A runs, in order: A's Finish, the
// policy decision, then B's SetInput and B's Run. With DispatchDirect this
// happens inside A's report call. With DispatchIterative the successor is
// queued and run after A's Run returns, so stack depth stays flat for long
// chains. Both modes produce the same sequence of calls. Start always uses
// DispatchDirect.
//
// # Usage Example
//
//	const (
//	    QueryName   taskz.Name = "query"
//	    ReserveName taskz.Name = "reserve"
//	    CheckName   taskz.Name = "check"
//	)
//
//	query := taskz.Apply(QueryName, lookupOrder)
//	reserve := taskz.Apply(ReserveName, reserveStock)
//	checker := &Check{}
//	check := taskz.New[Reservation, Result](CheckName, checker)
//
//	taskz.Follow(taskz.Then(query, reserve), check)
//
//	pipeline := taskz.NewPipeline[Result]("orders", query, taskz.ListenerFunc[Result]{
//	    OnSuccess: func(ctx context.Context, r Result) { fmt.Println("done:", r.Status) },
//	    OnFailed:  func(ctx context.Context, r Result) { fmt.Println("failed:", r.Status) },
//	})
//	pipeline.Inject(checker)
//
//	if err := pipeline.Run(ctx, 100); err != nil {
//	    // contract violation: a task reported twice, never, or panicked
//	}
//
// # Contract Violations
//
// Failure is an outcome, not an error. Run returns a non-nil error only when
// tasks break the contract, each wrapped in *Error[T] with the path and step
// where it happened:
//
//   - ErrNoOutcome: Run returned without reporting
//   - ErrDuplicateOutcome: a second report in one invocation (not forwarded)
//   - ErrDuplicateTerminal: a second final report in one run (not delivered)
//   - ErrPanic: the runner panicked (message sanitized)
//   - ErrCycle: the wiring loops back onto itself
//
// # Inspection
//
// Pipeline.Schema and Describe walk the wiring. A Schema renders to JSON or
// to a Graphviz digraph with DOT.
package taskz
