package taskz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for Pipeline.
const (
	// Metrics.
	PipelineRunsTotal       = metricz.Key("pipeline.runs.total")
	PipelineResolvedTotal   = metricz.Key("pipeline.resolved.total")
	PipelineSuccessesTotal  = metricz.Key("pipeline.successes.total")
	PipelineFailuresTotal   = metricz.Key("pipeline.failures.total")
	PipelineUnresolvedTotal = metricz.Key("pipeline.unresolved.total")
	PipelineFaultsTotal     = metricz.Key("pipeline.faults.total")
	PipelineSteps           = metricz.Key("pipeline.steps")
	PipelineDurationMs      = metricz.Key("pipeline.duration.ms")

	// Spans.
	PipelineRunSpan  = tracez.Key("pipeline.run")
	PipelineStepSpan = tracez.Key("pipeline.step")

	// Tags.
	PipelineTagDispatch   = tracez.Tag("pipeline.dispatch")
	PipelineTagResolved   = tracez.Tag("pipeline.resolved")
	PipelineTagOutcome    = tracez.Tag("pipeline.outcome")
	PipelineTagStepCount  = tracez.Tag("pipeline.step_count")
	PipelineTagStepNumber = tracez.Tag("pipeline.step_number")
	PipelineTagTaskName   = tracez.Tag("pipeline.task_name")
	PipelineTagError      = tracez.Tag("pipeline.error")

	// Hook event keys.
	PipelineEventStep       = hookz.Key("pipeline.step")
	PipelineEventResolved   = hookz.Key("pipeline.resolved")
	PipelineEventUnresolved = hookz.Key("pipeline.unresolved")
	PipelineEventFault      = hookz.Key("pipeline.fault")
)

// PipelineEvent represents progress of a pipeline execution.
// Step events carry TaskName, Step and Outcome; resolved and unresolved
// events carry Steps, Outcome (resolved only) and Duration; fault events
// carry Error.
type PipelineEvent struct {
	Name      Name          // Pipeline name
	TaskName  Name          // Task that reported (step events)
	Step      int           // 1-based invocation number (step events)
	Outcome   Outcome       // Task or final outcome
	Resolved  bool          // Whether the listener was notified
	Steps     int           // Invocations in the run (resolved/unresolved)
	Error     error         // Contract violation (fault events)
	Duration  time.Duration // Run duration (resolved/unresolved)
	Timestamp time.Time     // When the event occurred
}

// Pipeline is the runtime side of an assembler: it holds the head of a
// wired chain and the shared terminal listener, and starts executions.
//
// The assembler builds the tasks, wires them with Then, Follow or Link,
// hands the terminal listener to every runner that may conclude the run,
// then calls Run once per request:
//
//	query := taskz.New[int, Order](QueryName, &Query{})
//	reserve := taskz.New[Order, Reservation](ReserveName, &Reserve{Limit: 150})
//	checker := &Check{}
//	check := taskz.New[Reservation, Result](CheckName, checker)
//	taskz.Follow(taskz.Then(query, reserve), check)
//
//	pipeline := taskz.NewPipeline[Result]("orders", query, listener)
//	pipeline.Inject(checker)
//	err := pipeline.Run(ctx, 100)
//
// A run is resolved when the listener received a final outcome and
// unresolved otherwise, for example when a Gated bridge truncates the chain
// before any task reports a final outcome. Unresolved runs are not errors.
// Run returns an error only for contract violations, and for ErrCycle when
// the wiring loops.
//
// # Observability
//
// Metrics:
//   - pipeline.runs.total: Counter of runs
//   - pipeline.resolved.total: Counter of runs that notified the listener
//   - pipeline.successes.total: Counter of runs resolved with Success
//   - pipeline.failures.total: Counter of runs resolved with Failed
//   - pipeline.unresolved.total: Counter of runs with no final outcome
//   - pipeline.faults.total: Counter of contract violations
//   - pipeline.steps: Gauge of invocations in the last run
//   - pipeline.duration.ms: Gauge of the last run's duration
//
// Traces:
//   - pipeline.run: Parent span for a run
//   - pipeline.step: Child span for each task invocation
//
// Events (via hooks):
//   - pipeline.step: Fired when a task reports
//   - pipeline.resolved: Fired when a run ends with a final outcome
//   - pipeline.unresolved: Fired when a run ends without one
//   - pipeline.fault: Fired for each contract violation
type Pipeline[I, F any] struct {
	clock    clockz.Clock
	listener Listener[F]
	root     node
	head     func(context.Context, I)
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	hooks    *hookz.Hooks[PipelineEvent]
	name     Name
	mu       sync.RWMutex
	dispatch Dispatch
}

// NewPipeline creates a pipeline that starts at head and reports final
// outcomes to listener. F comes first so it can be given explicitly while
// I and O are inferred from head:
//
//	pipeline := taskz.NewPipeline[Result]("orders", query, listener)
func NewPipeline[F, I, O any](name Name, head *Task[I, O], listener Listener[F]) *Pipeline[I, F] {
	metrics := metricz.New()
	metrics.Counter(PipelineRunsTotal)
	metrics.Counter(PipelineResolvedTotal)
	metrics.Counter(PipelineSuccessesTotal)
	metrics.Counter(PipelineFailuresTotal)
	metrics.Counter(PipelineUnresolvedTotal)
	metrics.Counter(PipelineFaultsTotal)
	metrics.Gauge(PipelineSteps)
	metrics.Gauge(PipelineDurationMs)

	return &Pipeline[I, F]{
		name:     name,
		root:     head,
		head:     func(ctx context.Context, input I) { invoke(ctx, head, input) },
		listener: listener,
		clock:    clockz.RealClock,
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[PipelineEvent](),
	}
}

// Inject hands the pipeline's listener to every target. Call it from the
// assembler for each runner that may report a final outcome.
func (p *Pipeline[I, F]) Inject(targets ...TerminalSetter[F]) *Pipeline[I, F] {
	listener := p.Listener()
	for _, target := range targets {
		target.SetTerminalListener(listener)
	}
	return p
}

// Run sets the head's input to input, invokes it and returns once the chain
// ends. The returned error joins every contract violation of the run.
func (p *Pipeline[I, F]) Run(ctx context.Context, input I) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	head, root, dispatch, clock := p.head, p.root, p.dispatch, p.getClock()
	p.mu.RUnlock()

	if _, err := describe(p.name, root); err != nil {
		return &Error[I]{
			Timestamp: clock.Now(),
			InputData: input,
			Err:       err,
			Path:      []Name{p.name},
		}
	}

	p.metrics.Counter(PipelineRunsTotal).Inc()
	start := clock.Now()

	ctx, span := p.tracer.StartSpan(ctx, PipelineRunSpan)
	span.SetTag(PipelineTagDispatch, dispatch.String())

	exec := newExecution(p.name, dispatch, p)
	head(withExecution(ctx, exec), input)
	exec.drain()

	elapsed := clock.Now().Sub(start)
	steps := exec.stepCount()
	outcome, resolved := exec.resolution()
	err = exec.err()

	p.metrics.Gauge(PipelineSteps).Set(float64(steps))
	p.metrics.Gauge(PipelineDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(PipelineTagStepCount, fmt.Sprintf("%d", steps))
	if err != nil {
		span.SetTag(PipelineTagError, err.Error())
	}

	event := PipelineEvent{
		Name:      p.name,
		Steps:     steps,
		Duration:  elapsed,
		Resolved:  resolved,
		Timestamp: clock.Now(),
	}

	if !resolved {
		p.metrics.Counter(PipelineUnresolvedTotal).Inc()
		span.SetTag(PipelineTagResolved, "false")
		span.Finish()
		_ = p.hooks.Emit(ctx, PipelineEventUnresolved, event) //nolint:errcheck
		return err
	}

	p.metrics.Counter(PipelineResolvedTotal).Inc()
	if outcome == Success {
		p.metrics.Counter(PipelineSuccessesTotal).Inc()
	} else {
		p.metrics.Counter(PipelineFailuresTotal).Inc()
	}
	span.SetTag(PipelineTagResolved, "true")
	span.SetTag(PipelineTagOutcome, outcome.String())
	span.Finish()

	event.Outcome = outcome
	_ = p.hooks.Emit(ctx, PipelineEventResolved, event) //nolint:errcheck
	return err
}

// stepStarted implements monitor.
func (p *Pipeline[I, F]) stepStarted(ctx context.Context, name Name, step int) (context.Context, func()) {
	ctx, span := p.tracer.StartSpan(ctx, PipelineStepSpan)
	span.SetTag(PipelineTagStepNumber, fmt.Sprintf("%d", step))
	span.SetTag(PipelineTagTaskName, name)
	return ctx, span.Finish
}

// stepReported implements monitor.
func (p *Pipeline[I, F]) stepReported(ctx context.Context, name Name, step int, outcome Outcome) {
	_ = p.hooks.Emit(ctx, PipelineEventStep, PipelineEvent{ //nolint:errcheck
		Name:      p.name,
		TaskName:  name,
		Step:      step,
		Outcome:   outcome,
		Timestamp: p.getClock().Now(),
	})
}

// faulted implements monitor.
func (p *Pipeline[I, F]) faulted(ctx context.Context, err error) {
	p.metrics.Counter(PipelineFaultsTotal).Inc()
	_ = p.hooks.Emit(ctx, PipelineEventFault, PipelineEvent{ //nolint:errcheck
		Name:      p.name,
		Step:      CurrentStep(ctx),
		Error:     err,
		Timestamp: p.getClock().Now(),
	})
}

// Schema returns the wiring of the chain as currently attached.
func (p *Pipeline[I, F]) Schema() (Schema, error) {
	p.mu.RLock()
	root := p.root
	p.mu.RUnlock()
	return describe(p.name, root)
}

// SetDispatch selects how bridges hand control to successors.
func (p *Pipeline[I, F]) SetDispatch(d Dispatch) *Pipeline[I, F] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatch = d
	return p
}

// Dispatch returns the current dispatch mode.
func (p *Pipeline[I, F]) Dispatch() Dispatch {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dispatch
}

// Listener returns the shared terminal listener.
func (p *Pipeline[I, F]) Listener() Listener[F] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listener
}

// Name returns the pipeline name.
func (p *Pipeline[I, F]) Name() Name {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// WithClock sets a custom clock for testing.
func (p *Pipeline[I, F]) WithClock(clock clockz.Clock) *Pipeline[I, F] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

// getClock returns the clock to use.
func (p *Pipeline[I, F]) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

// Metrics returns the metrics registry for this pipeline.
func (p *Pipeline[I, F]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this pipeline.
func (p *Pipeline[I, F]) Tracer() *tracez.Tracer {
	return p.tracer
}

// OnStep registers a handler fired, asynchronously, each time a task reports.
func (p *Pipeline[I, F]) OnStep(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventStep, handler)
	return err
}

// OnResolved registers a handler fired, asynchronously, when a run ends
// with a final outcome.
func (p *Pipeline[I, F]) OnResolved(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventResolved, handler)
	return err
}

// OnUnresolved registers a handler fired, asynchronously, when a run ends
// without a final outcome.
func (p *Pipeline[I, F]) OnUnresolved(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventUnresolved, handler)
	return err
}

// OnFault registers a handler fired, asynchronously, for each contract
// violation.
func (p *Pipeline[I, F]) OnFault(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventFault, handler)
	return err
}

// Close gracefully shuts down observability components.
func (p *Pipeline[I, F]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}
