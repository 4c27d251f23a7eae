package taskz

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// verdict is a runner that can conclude the pipeline.
type verdict struct {
	Terminal[string]
	finals int
}

func (v *verdict) Run(ctx context.Context, t *Task[int, string]) {
	n := t.Input()
	for i := 0; i < v.finals; i++ {
		if n >= 0 {
			v.ReportFinalSuccess(ctx, "ok")
		} else {
			v.ReportFinalFailure(ctx, "negative")
		}
	}
	if n >= 0 {
		t.ReportSuccess(ctx, "ok")
		return
	}
	t.ReportFailure(ctx, "negative")
}

// collector is a Listener that records what it receives.
type collector struct {
	successes []string
	failures  []string
	mu        sync.Mutex
}

func (c *collector) Success(_ context.Context, r string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, r)
}

func (c *collector) Failed(_ context.Context, r string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, r)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.successes), len(c.failures)
}

func buildVerdictPipeline(finals int, listener Listener[string]) (*Pipeline[int, string], *verdict) {
	head := Transform(taskA, func(_ context.Context, n int) int { return n })
	v := &verdict{finals: finals}
	Follow(head, New[int, string](taskB, v))
	p := NewPipeline[string](testPipeline, head, listener)
	p.Inject(v)
	return p, v
}

func TestNewPipeline(t *testing.T) {
	listener := &collector{}
	p, v := buildVerdictPipeline(1, listener)
	defer p.Close()

	if p.Name() != testPipeline {
		t.Errorf("expected name %q, got %q", testPipeline, p.Name())
	}
	if p.Listener() != Listener[string](listener) {
		t.Error("expected listener to be stored")
	}
	if v.TerminalListener() != Listener[string](listener) {
		t.Error("expected Inject to hand the listener to the runner")
	}
	if p.Dispatch() != DispatchDirect {
		t.Errorf("expected direct dispatch, got %s", p.Dispatch())
	}
	if p.Metrics() == nil || p.Tracer() == nil {
		t.Error("expected observability components to be initialized")
	}
}

func TestPipelineTerminal(t *testing.T) {
	t.Run("Final Success", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(1, listener)
		defer p.Close()

		if err := p.Run(context.Background(), 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s, f := listener.counts(); s != 1 || f != 0 {
			t.Errorf("expected 1 success and 0 failures, got %d and %d", s, f)
		}
	})

	t.Run("Final Failure", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(1, listener)
		defer p.Close()

		if err := p.Run(context.Background(), -1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s, f := listener.counts(); s != 0 || f != 1 {
			t.Errorf("expected 0 successes and 1 failure, got %d and %d", s, f)
		}
		if listener.failures[0] != "negative" {
			t.Errorf("expected payload negative, got %q", listener.failures[0])
		}
	})

	t.Run("Duplicate Terminal Is Suppressed", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(2, listener)
		defer p.Close()

		err := p.Run(context.Background(), 5)
		if !errors.Is(err, ErrDuplicateTerminal) {
			t.Fatalf("expected ErrDuplicateTerminal, got %v", err)
		}
		var fault *Error[string]
		if !errors.As(err, &fault) {
			t.Fatalf("expected *Error[string], got %T", err)
		}
		if fault.InputData != "ok" || fault.Step != 2 {
			t.Errorf("unexpected fault details: %+v", fault)
		}
		if s, f := listener.counts(); s != 1 || f != 0 {
			t.Errorf("expected exactly 1 delivery, got %d and %d", s, f)
		}
		if resolved := p.Metrics().Counter(PipelineResolvedTotal).Value(); resolved != 1 {
			t.Errorf("expected 1 resolved run, got %f", resolved)
		}
	})

	t.Run("Terminal Claim Resets Per Run", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(1, listener)
		defer p.Close()

		for i := 0; i < 3; i++ {
			if err := p.Run(context.Background(), i); err != nil {
				t.Fatalf("run %d: unexpected error: %v", i, err)
			}
		}
		if s, _ := listener.counts(); s != 3 {
			t.Errorf("expected 3 successes, got %d", s)
		}
	})

	t.Run("No Listener Drops Final Reports", func(t *testing.T) {
		p, _ := buildVerdictPipeline(2, nil)
		defer p.Close()

		if err := p.Run(context.Background(), 5); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if unresolved := p.Metrics().Counter(PipelineUnresolvedTotal).Value(); unresolved != 1 {
			t.Errorf("expected 1 unresolved run, got %f", unresolved)
		}
	})

	t.Run("Listener Outside Execution", func(t *testing.T) {
		listener := &collector{}
		v := &verdict{finals: 2}
		v.SetTerminalListener(listener)
		task := New[int, string](taskB, v)
		task.SetInput(1)
		task.Run(context.Background())

		if s, _ := listener.counts(); s != 2 {
			t.Errorf("expected both reports without an execution, got %d", s)
		}
	})
}

func TestPipelineCycle(t *testing.T) {
	j := &journal{}
	a, b := succeed(j, taskA, inc), succeed(j, taskB, inc)
	Then(a, b)
	Then(b, a)

	p := NewPipeline[int](testPipeline, a, nil)
	defer p.Close()

	err := p.Run(context.Background(), 0)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if len(j.list()) != 0 {
		t.Errorf("no task should run, got %v", j.list())
	}
	if runs := p.Metrics().Counter(PipelineRunsTotal).Value(); runs != 0 {
		t.Errorf("expected 0 runs, got %f", runs)
	}
	if _, err := p.Schema(); !errors.Is(err, ErrCycle) {
		t.Errorf("expected Schema to report ErrCycle, got %v", err)
	}
}

func TestStartCycle(t *testing.T) {
	j := &journal{}
	a, b := succeed(j, taskA, inc), succeed(j, taskB, inc)
	Follow(Follow(a, b), a)

	err := Start(context.Background(), a, 1)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	var taskErr *Error[int]
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *Error[int], got %T", err)
	}
	if taskErr.InputData != 1 || !reflect.DeepEqual(taskErr.Path, []Name{taskA}) {
		t.Errorf("unexpected error details: input=%d path=%v", taskErr.InputData, taskErr.Path)
	}
	if len(j.list()) != 0 {
		t.Errorf("no task should run, got %v", j.list())
	}
}

func TestPipelineObservability(t *testing.T) {
	t.Run("Metrics and Spans - Resolved", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(1, listener)
		defer p.Close()

		var spans []tracez.Span
		var spanMu sync.Mutex
		p.Tracer().OnSpanComplete(func(span tracez.Span) {
			spanMu.Lock()
			spans = append(spans, span)
			spanMu.Unlock()
		})

		if err := p.Run(context.Background(), 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if runs := p.Metrics().Counter(PipelineRunsTotal).Value(); runs != 1 {
			t.Errorf("expected 1 run, got %f", runs)
		}
		if resolved := p.Metrics().Counter(PipelineResolvedTotal).Value(); resolved != 1 {
			t.Errorf("expected 1 resolved, got %f", resolved)
		}
		if successes := p.Metrics().Counter(PipelineSuccessesTotal).Value(); successes != 1 {
			t.Errorf("expected 1 success, got %f", successes)
		}
		if failures := p.Metrics().Counter(PipelineFailuresTotal).Value(); failures != 0 {
			t.Errorf("expected 0 failures, got %f", failures)
		}
		if steps := p.Metrics().Gauge(PipelineSteps).Value(); steps != 2 {
			t.Errorf("expected 2 steps, got %f", steps)
		}

		spanMu.Lock()
		defer spanMu.Unlock()
		if len(spans) != 3 {
			t.Fatalf("expected 3 spans (1 run + 2 steps), got %d", len(spans))
		}
		for _, span := range spans {
			switch tracez.Key(span.Name) {
			case PipelineRunSpan:
				if span.Tags[PipelineTagResolved] != "true" {
					t.Errorf("expected resolved tag true, got %q", span.Tags[PipelineTagResolved])
				}
				if span.Tags[PipelineTagOutcome] != "success" {
					t.Errorf("expected outcome tag success, got %q", span.Tags[PipelineTagOutcome])
				}
				if span.Tags[PipelineTagStepCount] != "2" {
					t.Errorf("expected step count 2, got %q", span.Tags[PipelineTagStepCount])
				}
			case PipelineStepSpan:
				if _, ok := span.Tags[PipelineTagStepNumber]; !ok {
					t.Error("step span missing step number tag")
				}
				if _, ok := span.Tags[PipelineTagTaskName]; !ok {
					t.Error("step span missing task name tag")
				}
			default:
				t.Errorf("unexpected span %s", span.Name)
			}
		}
	})

	t.Run("Metrics - Unresolved", func(t *testing.T) {
		j := &journal{}
		a := fail(j, taskA, inc)
		Then(a, succeed(j, taskB, inc))
		p := NewPipeline[string](testPipeline, a, &collector{})
		defer p.Close()

		if err := p.Run(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if unresolved := p.Metrics().Counter(PipelineUnresolvedTotal).Value(); unresolved != 1 {
			t.Errorf("expected 1 unresolved, got %f", unresolved)
		}
		if resolved := p.Metrics().Counter(PipelineResolvedTotal).Value(); resolved != 0 {
			t.Errorf("expected 0 resolved, got %f", resolved)
		}
		if steps := p.Metrics().Gauge(PipelineSteps).Value(); steps != 1 {
			t.Errorf("expected 1 step, got %f", steps)
		}
	})

	t.Run("Duration Uses Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		head := Transform(taskA, func(_ context.Context, n int) int {
			clock.Advance(250 * time.Millisecond)
			return n
		})
		p := NewPipeline[int](testPipeline, head, nil).WithClock(clock)
		defer p.Close()

		if err := p.Run(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ms := p.Metrics().Gauge(PipelineDurationMs).Value(); ms != 250 {
			t.Errorf("expected 250ms, got %f", ms)
		}
	})

	t.Run("Hooks fire on pipeline events", func(t *testing.T) {
		listener := &collector{}
		p, _ := buildVerdictPipeline(2, listener)
		defer p.Close()

		var steps, resolved, unresolved, faults []PipelineEvent
		var mu sync.Mutex
		record := func(dst *[]PipelineEvent) func(context.Context, PipelineEvent) error {
			return func(_ context.Context, e PipelineEvent) error {
				mu.Lock()
				*dst = append(*dst, e)
				mu.Unlock()
				return nil
			}
		}
		if err := p.OnStep(record(&steps)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}
		if err := p.OnResolved(record(&resolved)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}
		if err := p.OnUnresolved(record(&unresolved)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}
		if err := p.OnFault(record(&faults)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}

		if err := p.Run(context.Background(), -4); !errors.Is(err, ErrDuplicateTerminal) {
			t.Fatalf("expected ErrDuplicateTerminal, got %v", err)
		}

		// Wait for async hooks to fire
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()

		if len(steps) != 2 {
			t.Fatalf("expected 2 step events, got %d", len(steps))
		}
		sort.Slice(steps, func(i, k int) bool { return steps[i].Step < steps[k].Step })
		if steps[0].TaskName != taskA || steps[0].Outcome != Success {
			t.Errorf("unexpected first step event: %+v", steps[0])
		}
		if steps[1].TaskName != taskB || steps[1].Outcome != Failure {
			t.Errorf("unexpected second step event: %+v", steps[1])
		}

		if len(resolved) != 1 {
			t.Fatalf("expected 1 resolved event, got %d", len(resolved))
		}
		if resolved[0].Outcome != Failure || resolved[0].Steps != 2 || !resolved[0].Resolved {
			t.Errorf("unexpected resolved event: %+v", resolved[0])
		}
		if len(unresolved) != 0 {
			t.Errorf("expected no unresolved events, got %d", len(unresolved))
		}
		if len(faults) != 1 {
			t.Fatalf("expected 1 fault event, got %d", len(faults))
		}
		if !errors.Is(faults[0].Error, ErrDuplicateTerminal) || faults[0].Step != 2 {
			t.Errorf("unexpected fault event: %+v", faults[0])
		}
	})
}
