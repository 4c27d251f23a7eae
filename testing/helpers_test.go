package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/taskz"
)

func TestMockRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("Reports Configured Outcome", func(t *testing.T) {
		mock := NewMockRunner[int, string](t, "mock").WithOutcome(taskz.Failure, "bad")
		next := NewMockRunner[string, int](t, "next")
		head := mock.Task()
		taskz.Follow(head, next.Task())

		if err := taskz.Start(ctx, head, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertRan(t, mock, 1)
		AssertFinished(t, mock, 1)
		AssertRanWith(t, next, "bad")
		if mock.LastFinish() != "bad" {
			t.Errorf("expected finish payload 'bad', got %q", mock.LastFinish())
		}
	})

	t.Run("Tracks Inputs", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock").WithHistorySize(2)
		head := mock.Task()
		for i := 1; i <= 3; i++ {
			if err := taskz.Start(ctx, head, i); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		inputs := mock.Inputs()
		if len(inputs) != 2 || inputs[0] != 2 || inputs[1] != 3 {
			t.Errorf("expected [2 3], got %v", inputs)
		}
		if mock.LastInput() != 3 {
			t.Errorf("expected last input 3, got %d", mock.LastInput())
		}
	})

	t.Run("Panics When Configured", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock-panic").WithPanic("test panic")
		err := taskz.Start(ctx, mock.Task(), 1)
		if !errors.Is(err, taskz.ErrPanic) {
			t.Errorf("expected ErrPanic, got %v", err)
		}
	})

	t.Run("Silence Is A Contract Violation", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock-silent").WithSilence()
		err := taskz.Start(ctx, mock.Task(), 1)
		if !errors.Is(err, taskz.ErrNoOutcome) {
			t.Errorf("expected ErrNoOutcome, got %v", err)
		}
	})

	t.Run("Double Report Is A Contract Violation", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock-double").WithDoubleReport()
		next := NewMockRunner[int, int](t, "next")
		head := mock.Task()
		taskz.Then(head, next.Task())

		err := taskz.Start(ctx, head, 1)
		if !errors.Is(err, taskz.ErrDuplicateOutcome) {
			t.Errorf("expected ErrDuplicateOutcome, got %v", err)
		}
		AssertRan(t, next, 1)
	})

	t.Run("Applies Delay", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock-delay").WithDelay(50 * time.Millisecond)
		elapsed := MeasureLatency(func() {
			_ = taskz.Start(ctx, mock.Task(), 1) //nolint:errcheck
		})
		if elapsed < 50*time.Millisecond {
			t.Errorf("expected delay of at least 50ms, got %v", elapsed)
		}
	})

	t.Run("Reset Clears State", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock-reset")
		_ = taskz.Start(ctx, mock.Task(), 1) //nolint:errcheck
		mock.Reset()
		AssertNotRan(t, mock)
		if len(mock.Inputs()) != 0 {
			t.Errorf("expected empty history after reset, got %v", mock.Inputs())
		}
	})

	t.Run("Name", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "my-mock")
		if mock.Name() != "my-mock" || mock.Task().Name() != "my-mock" {
			t.Errorf("expected name 'my-mock', got %q", mock.Name())
		}
	})
}

func TestJournal(t *testing.T) {
	journal := NewJournal()
	a := NewMockRunner[int, int](t, "a").WithJournal(journal).WithOutcome(taskz.Success, 2)
	b := NewMockRunner[int, int](t, "b").WithJournal(journal).WithOutcome(taskz.Failure, 3)
	c := NewMockRunner[int, int](t, "c").WithJournal(journal)

	head := a.Task()
	taskz.Follow(taskz.Then(head, b.Task()), c.Task())

	if err := taskz.Start(context.Background(), head, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	AssertOrder(t, journal, "a.run", "a.finish", "b.run", "b.finish", "c.run")

	calls := journal.Calls()
	for i, call := range calls {
		if call.Seq != i+1 {
			t.Errorf("call %d: expected seq %d, got %d", i, i+1, call.Seq)
		}
	}
	if calls[2].Value != 2 || calls[2].Step != 2 {
		t.Errorf("expected b.run with input 2 at step 2, got %+v", calls[2])
	}

	journal.Reset()
	if len(journal.Labels()) != 0 {
		t.Error("expected empty journal after reset")
	}
}

func TestRecordingListener(t *testing.T) {
	listener := NewRecordingListener[string]()
	AssertUnresolved(t, listener)

	listener.Failed(context.Background(), "nope")
	AssertResolved(t, listener, taskz.Failure)
	if listener.Failures()[0] != "nope" {
		t.Errorf("expected 'nope', got %q", listener.Failures()[0])
	}

	listener.Reset()
	listener.Success(context.Background(), "yes")
	AssertResolved(t, listener, taskz.Success)
	if listener.Total() != 1 {
		t.Errorf("expected 1 result, got %d", listener.Total())
	}
}

func TestChaosRunner(t *testing.T) {
	t.Run("Never Injects At Zero Rates", func(t *testing.T) {
		inner := NewMockRunner[int, int](t, "inner")
		chaos := NewChaosRunner[int, int](inner, -1, ChaosConfig{Seed: 1})
		task := taskz.New[int, int]("chaos", chaos)

		for i := 0; i < 20; i++ {
			if err := taskz.Start(context.Background(), task, i); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		stats := chaos.Stats()
		if stats.TotalCalls != 20 || stats.Injected() != 0 {
			t.Errorf("unexpected stats: %s", stats)
		}
		AssertRan(t, inner, 20)
	})

	t.Run("Always Fails At Full Rate", func(t *testing.T) {
		inner := NewMockRunner[int, int](t, "inner")
		next := NewMockRunner[int, int](t, "next")
		chaos := NewChaosRunner[int, int](inner, -1, ChaosConfig{FailureRate: 1, Seed: 1})
		head := taskz.New[int, int]("chaos", chaos)
		taskz.Follow(head, next.Task())

		if err := taskz.Start(context.Background(), head, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		AssertNotRan(t, inner)
		AssertRanWith(t, next, -1)
		if chaos.Stats().FailedCalls != 1 {
			t.Errorf("expected 1 injected failure, got %s", chaos.Stats())
		}
	})

	t.Run("Faults Are Recorded", func(t *testing.T) {
		inner := NewMockRunner[int, int](t, "inner")
		chaos := NewChaosRunner[int, int](inner, 0, ChaosConfig{PanicRate: 0.3, SilenceRate: 0.3, Seed: 42})
		task := taskz.New[int, int]("chaos", chaos)

		faults := 0
		for i := 0; i < 50; i++ {
			if err := taskz.Start(context.Background(), task, i); err != nil {
				faults++
			}
		}
		stats := chaos.Stats()
		if int64(faults) != stats.PanicCalls+stats.SilentCalls {
			t.Errorf("expected %d faults, got %d (%s)", stats.PanicCalls+stats.SilentCalls, faults, stats)
		}
	})
}

func TestHelperFunctions(t *testing.T) {
	t.Run("WaitForRuns", func(t *testing.T) {
		mock := NewMockRunner[int, int](t, "mock")
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = taskz.Start(context.Background(), mock.Task(), 1) //nolint:errcheck
		}()
		if !WaitForRuns(mock, 1, time.Second) {
			t.Error("expected the mock to run within the timeout")
		}
	})

	t.Run("ParallelTest", func(t *testing.T) {
		listener := NewRecordingListener[int]()
		ParallelTest(t, 10, func(id int) {
			listener.Success(context.Background(), id)
		})
		if listener.Total() != 10 {
			t.Errorf("expected 10 results, got %d", listener.Total())
		}
	})
}
