package taskz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for Bridge.
const (
	// Metrics.
	BridgeDeliveredTotal = metricz.Key("bridge.delivered.total")
	BridgeForwardedTotal = metricz.Key("bridge.forwarded.total")
	BridgeTruncatedTotal = metricz.Key("bridge.truncated.total")
	BridgeCascadedTotal  = metricz.Key("bridge.cascaded.total")

	// Spans.
	BridgeDeliverSpan = tracez.Key("bridge.deliver")

	// Tags.
	BridgeTagPolicy   = tracez.Tag("bridge.policy")
	BridgeTagOutcome  = tracez.Tag("bridge.outcome")
	BridgeTagDecision = tracez.Tag("bridge.decision")

	// Hook event keys.
	BridgeEventForwarded = hookz.Key("bridge.forwarded")
	BridgeEventTruncated = hookz.Key("bridge.truncated")
	BridgeEventCascaded  = hookz.Key("bridge.cascaded")
)

// BridgeEvent describes one outcome passing through a bridge.
type BridgeEvent struct {
	Name      Name      // Bridge name ("from->to")
	From      Name      // Task that reported
	To        Name      // Task the bridge leads to
	Policy    Name      // Policy that decided
	Outcome   Outcome   // Reported outcome
	Decision  Decision  // Forward or Truncate
	Aborted   bool      // Set for payload-less aborts
	Timestamp time.Time // When the decision was taken
}

// Bridge connects a task producing O to a successor consuming O and
// producing X. It receives every outcome of its current task, calls the
// current task's Finish, then lets its Policy decide whether the successor
// runs with the payload.
//
// Bridges are built by Link, Then and Follow and are immutable afterwards.
// They hold the two tasks without owning them.
//
// # Observability
//
// Metrics:
//   - bridge.delivered.total: Counter of outcomes received
//   - bridge.forwarded.total: Counter of successor invocations
//   - bridge.truncated.total: Counter of truncated chains
//   - bridge.cascaded.total: Counter of aborts passed to the successor
//
// Traces:
//   - bridge.deliver: Span covering Finish and the policy decision
//
// Events (via hooks):
//   - bridge.forwarded: Fired when the successor is about to run
//   - bridge.truncated: Fired when the chain stops at this bridge
//   - bridge.cascaded: Fired when an abort passes to the successor
//
// Example with hooks:
//
//	bridge := taskz.Link(query, reserve, taskz.Gated)
//	bridge.OnTruncated(func(ctx context.Context, e taskz.BridgeEvent) error {
//	    log.Printf("%s stopped the chain", e.From)
//	    return nil
//	})
type Bridge[I, O, X any] struct {
	current *Task[I, O]
	next    *Task[O, X]
	policy  Policy
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[BridgeEvent]
	name    Name
	mu      sync.RWMutex
}

// Link attaches a bridge governed by policy from current to next and
// returns it. A nil policy means Gated. Any bridge previously attached to
// current is replaced.
func Link[I, O, X any](current *Task[I, O], next *Task[O, X], policy Policy) *Bridge[I, O, X] {
	if policy == nil {
		policy = Gated
	}

	metrics := metricz.New()
	metrics.Counter(BridgeDeliveredTotal)
	metrics.Counter(BridgeForwardedTotal)
	metrics.Counter(BridgeTruncatedTotal)
	metrics.Counter(BridgeCascadedTotal)

	b := &Bridge[I, O, X]{
		name:    current.Name() + "->" + next.Name(),
		current: current,
		next:    next,
		policy:  policy,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[BridgeEvent](),
	}
	current.attach(b)
	return b
}

// Then wires current to next with the Gated policy and returns next, so
// chains read left to right:
//
//	taskz.Follow(taskz.Then(query, reserve), check)
//
// next runs only when current reports success. A failure truncates the
// chain after current's Finish.
func Then[I, O, X any](current *Task[I, O], next *Task[O, X]) *Task[O, X] {
	Link(current, next, Gated)
	return next
}

// Follow wires current to next with the Unconditional policy and returns
// next. next runs after both success and failure and receives whichever
// payload current reported.
func Follow[I, O, X any](current *Task[I, O], next *Task[O, X]) *Task[O, X] {
	Link(current, next, Unconditional)
	return next
}

// deliver implements outlet.
func (b *Bridge[I, O, X]) deliver(ctx context.Context, outcome Outcome, output O) {
	b.mu.RLock()
	current, next, policy := b.current, b.next, b.policy
	b.mu.RUnlock()

	b.metrics.Counter(BridgeDeliveredTotal).Inc()

	spanCtx, span := b.tracer.StartSpan(ctx, BridgeDeliverSpan)
	span.SetTag(BridgeTagPolicy, policy.Name())
	span.SetTag(BridgeTagOutcome, outcome.String())

	current.Finish(spanCtx, output)
	decision := policy.Decide(outcome)

	span.SetTag(BridgeTagDecision, decision.String())
	span.Finish()

	event := BridgeEvent{
		Name:      b.name,
		From:      current.Name(),
		To:        next.Name(),
		Policy:    policy.Name(),
		Outcome:   outcome,
		Decision:  decision,
		Timestamp: time.Now(),
	}

	if decision != Forward {
		b.metrics.Counter(BridgeTruncatedTotal).Inc()
		_ = b.hooks.Emit(ctx, BridgeEventTruncated, event) //nolint:errcheck
		return
	}

	b.metrics.Counter(BridgeForwardedTotal).Inc()
	_ = b.hooks.Emit(ctx, BridgeEventForwarded, event) //nolint:errcheck

	queued := executionFrom(ctx).schedule(func(base context.Context) {
		invoke(base, next, output)
	})
	if !queued {
		invoke(ctx, next, output)
	}
}

// abort implements outlet. The current task has no payload, so Finish is
// skipped and the policy's abort decision applies.
func (b *Bridge[I, O, X]) abort(ctx context.Context) {
	b.mu.RLock()
	current, next, policy := b.current, b.next, b.policy
	b.mu.RUnlock()

	b.metrics.Counter(BridgeDeliveredTotal).Inc()

	_, span := b.tracer.StartSpan(ctx, BridgeDeliverSpan)
	span.SetTag(BridgeTagPolicy, policy.Name())
	span.SetTag(BridgeTagOutcome, "aborted")
	decision := decideAbort(policy)
	span.SetTag(BridgeTagDecision, decision.String())
	span.Finish()

	event := BridgeEvent{
		Name:      b.name,
		From:      current.Name(),
		To:        next.Name(),
		Policy:    policy.Name(),
		Outcome:   Failure,
		Decision:  decision,
		Aborted:   true,
		Timestamp: time.Now(),
	}

	if decision != Forward {
		b.metrics.Counter(BridgeTruncatedTotal).Inc()
		_ = b.hooks.Emit(ctx, BridgeEventTruncated, event) //nolint:errcheck
		return
	}

	b.metrics.Counter(BridgeCascadedTotal).Inc()
	_ = b.hooks.Emit(ctx, BridgeEventCascaded, event) //nolint:errcheck

	queued := executionFrom(ctx).schedule(next.cascade)
	if !queued {
		next.cascade(ctx)
	}
}

// link implements outlet.
func (b *Bridge[I, O, X]) link() (Policy, node) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.policy, b.next
}

// Name returns the bridge name, "from->to".
func (b *Bridge[I, O, X]) Name() Name {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Policy returns the policy governing this bridge.
func (b *Bridge[I, O, X]) Policy() Policy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.policy
}

// Current returns the task whose outcomes this bridge receives.
func (b *Bridge[I, O, X]) Current() *Task[I, O] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Next returns the successor task.
func (b *Bridge[I, O, X]) Next() *Task[O, X] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next
}

// Metrics returns the metrics registry for this bridge.
func (b *Bridge[I, O, X]) Metrics() *metricz.Registry {
	return b.metrics
}

// Tracer returns the tracer for this bridge.
func (b *Bridge[I, O, X]) Tracer() *tracez.Tracer {
	return b.tracer
}

// OnForwarded registers a handler fired, asynchronously, each time the
// bridge runs its successor.
func (b *Bridge[I, O, X]) OnForwarded(handler func(context.Context, BridgeEvent) error) error {
	_, err := b.hooks.Hook(BridgeEventForwarded, handler)
	return err
}

// OnTruncated registers a handler fired, asynchronously, each time the
// bridge stops the chain.
func (b *Bridge[I, O, X]) OnTruncated(handler func(context.Context, BridgeEvent) error) error {
	_, err := b.hooks.Hook(BridgeEventTruncated, handler)
	return err
}

// OnCascaded registers a handler fired, asynchronously, each time the
// bridge passes an abort to its successor.
func (b *Bridge[I, O, X]) OnCascaded(handler func(context.Context, BridgeEvent) error) error {
	_, err := b.hooks.Hook(BridgeEventCascaded, handler)
	return err
}

// Close shuts down the bridge's tracer and hooks.
func (b *Bridge[I, O, X]) Close() error {
	if b.tracer != nil {
		b.tracer.Close()
	}
	b.hooks.Close()
	return nil
}
