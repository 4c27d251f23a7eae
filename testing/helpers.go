// Package testing provides test utilities and helpers for taskz-based applications.
//
// This package includes mock runners, a recording listener, a shared call
// journal for asserting execution order, and chaos runners that break the
// task contract on purpose.
//
// Example usage:
//
//	func TestMyChain(t *testing.T) {
//		journal := taskztesting.NewJournal()
//		query := taskztesting.NewMockRunner[int, Order](t, "query").
//			WithJournal(journal).
//			WithOutcome(taskz.Success, Order{ID: 100})
//		reserve := taskztesting.NewMockRunner[Order, Reservation](t, "reserve").
//			WithJournal(journal)
//
//		head := taskz.New[int, Order]("query", query)
//		taskz.Then(head, taskz.New[Order, Reservation]("reserve", reserve))
//
//		if err := taskz.Start(context.Background(), head, 100); err != nil {
//			t.Fatal(err)
//		}
//		taskztesting.AssertRan(t, reserve, 1)
//		taskztesting.AssertOrder(t, journal, "query.run", "query.finish", "reserve.run")
//	}
package testing

import (
	"context"
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/taskz"
)

// Call is one recorded entry in a Journal.
type Call struct {
	Timestamp time.Time
	Value     any
	Task      taskz.Name
	Kind      string // "run" or "finish"
	Seq       int
	Step      int
}

// Label returns "task.kind".
func (c Call) Label() string {
	return c.Task + "." + c.Kind
}

// Journal records Run and Finish calls across every mock that shares it,
// with a global sequence number.
type Journal struct {
	calls []Call
	mu    sync.Mutex
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) record(ctx context.Context, task taskz.Name, kind string, value any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, Call{
		Task:      task,
		Kind:      kind,
		Value:     value,
		Seq:       len(j.calls) + 1,
		Step:      taskz.CurrentStep(ctx),
		Timestamp: time.Now(),
	})
}

// Calls returns a copy of the recorded calls.
func (j *Journal) Calls() []Call {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.calls)
}

// Labels returns the recorded calls as "task.kind" strings.
func (j *Journal) Labels() []string {
	calls := j.Calls()
	labels := make([]string, len(calls))
	for i, c := range calls {
		labels[i] = c.Label()
	}
	return labels
}

// Reset clears the journal.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
}

// MockRunner provides a configurable implementation of taskz.Runner and
// taskz.Finisher. It tracks calls, reports a configured outcome and can be
// told to break the contract (panic, stay silent, report twice).
type MockRunner[I, O any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	runCount    int64
	finishCount int64
	lastInput   I
	lastFinish  O
	payload     O
	outcome     taskz.Outcome
	delay       time.Duration
	panicMsg    string
	silent      bool
	double      bool
	fn          func(context.Context, I) (O, taskz.Outcome)
	journal     *Journal
	mu          sync.RWMutex
	inputs      []I
	maxHistory  int
}

// NewMockRunner creates a mock that reports success with the zero O.
func NewMockRunner[I, O any](t *testing.T, name string) *MockRunner[I, O] {
	return &MockRunner[I, O]{
		t:          t,
		name:       name,
		maxHistory: 100,
	}
}

// WithOutcome configures the outcome and payload reported by Run.
func (m *MockRunner[I, O]) WithOutcome(outcome taskz.Outcome, payload O) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcome
	m.payload = payload
	return m
}

// WithFunc computes the outcome and payload from the input, overriding
// WithOutcome.
func (m *MockRunner[I, O]) WithFunc(fn func(context.Context, I) (O, taskz.Outcome)) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithDelay configures the mock to wait before reporting.
func (m *MockRunner[I, O]) WithDelay(d time.Duration) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic instead of reporting.
func (m *MockRunner[I, O]) WithPanic(msg string) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithSilence configures the mock to return from Run without reporting.
func (m *MockRunner[I, O]) WithSilence() *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent = true
	return m
}

// WithDoubleReport configures the mock to report its outcome twice.
func (m *MockRunner[I, O]) WithDoubleReport() *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.double = true
	return m
}

// WithJournal records this mock's calls into j.
func (m *MockRunner[I, O]) WithJournal(j *Journal) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
	return m
}

// WithHistorySize configures how many inputs to keep. Set to 0 to disable.
func (m *MockRunner[I, O]) WithHistorySize(size int) *MockRunner[I, O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.inputs = nil
	} else if len(m.inputs) > size {
		m.inputs = m.inputs[len(m.inputs)-size:]
	}
	return m
}

// Name returns the mock name.
func (m *MockRunner[I, O]) Name() taskz.Name {
	return m.name
}

// Task wraps the mock in a task of the same name.
func (m *MockRunner[I, O]) Task() *taskz.Task[I, O] {
	return taskz.New[I, O](m.name, m)
}

// Run implements taskz.Runner.
func (m *MockRunner[I, O]) Run(ctx context.Context, task *taskz.Task[I, O]) {
	atomic.AddInt64(&m.runCount, 1)
	input := task.Input()

	m.mu.Lock()
	m.lastInput = input
	if m.maxHistory > 0 {
		m.inputs = append(m.inputs, input)
		if len(m.inputs) > m.maxHistory {
			m.inputs = m.inputs[1:]
		}
	}
	journal := m.journal
	outcome, payload := m.outcome, m.payload
	delay, panicMsg := m.delay, m.panicMsg
	silent, double, fn := m.silent, m.double, m.fn
	m.mu.Unlock()

	journal.record(ctx, m.name, "run", input)

	if panicMsg != "" {
		panic(panicMsg)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	if silent {
		return
	}

	if fn != nil {
		payload, outcome = fn(ctx, input)
	}

	reports := 1
	if double {
		reports = 2
	}
	for i := 0; i < reports; i++ {
		if outcome == taskz.Success {
			task.ReportSuccess(ctx, payload)
		} else {
			task.ReportFailure(ctx, payload)
		}
	}
}

// Finish implements taskz.Finisher.
func (m *MockRunner[I, O]) Finish(ctx context.Context, output O) {
	atomic.AddInt64(&m.finishCount, 1)
	m.mu.Lock()
	m.lastFinish = output
	journal := m.journal
	m.mu.Unlock()
	journal.record(ctx, m.name, "finish", output)
}

// RunCount returns the number of Run calls.
func (m *MockRunner[I, O]) RunCount() int {
	return int(atomic.LoadInt64(&m.runCount))
}

// FinishCount returns the number of Finish calls.
func (m *MockRunner[I, O]) FinishCount() int {
	return int(atomic.LoadInt64(&m.finishCount))
}

// LastInput returns the input of the most recent Run.
func (m *MockRunner[I, O]) LastInput() I {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// LastFinish returns the payload of the most recent Finish.
func (m *MockRunner[I, O]) LastFinish() O {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFinish
}

// Inputs returns a copy of the recorded inputs.
func (m *MockRunner[I, O]) Inputs() []I {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	return slices.Clone(m.inputs)
}

// Reset clears call tracking.
func (m *MockRunner[I, O]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.runCount, 0)
	atomic.StoreInt64(&m.finishCount, 0)
	m.lastInput = *new(I)
	m.lastFinish = *new(O)
	m.inputs = nil
}

// RecordingListener is a taskz.Listener that keeps every final result.
type RecordingListener[F any] struct {
	successes []F
	failures  []F
	mu        sync.Mutex
}

// NewRecordingListener creates an empty listener.
func NewRecordingListener[F any]() *RecordingListener[F] {
	return &RecordingListener[F]{}
}

// Success implements taskz.Listener.
func (l *RecordingListener[F]) Success(_ context.Context, result F) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successes = append(l.successes, result)
}

// Failed implements taskz.Listener.
func (l *RecordingListener[F]) Failed(_ context.Context, result F) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, result)
}

// Successes returns a copy of the results delivered through Success.
func (l *RecordingListener[F]) Successes() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.successes)
}

// Failures returns a copy of the results delivered through Failed.
func (l *RecordingListener[F]) Failures() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.failures)
}

// Total returns the number of deliveries of either kind.
func (l *RecordingListener[F]) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.successes) + len(l.failures)
}

// Reset clears recorded results.
func (l *RecordingListener[F]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successes = nil
	l.failures = nil
}

// Assertion Helpers

// AssertRan verifies that a mock runner was run exactly n times.
func AssertRan[I, O any](t *testing.T, mock *MockRunner[I, O], expectedRuns int) {
	t.Helper()
	if actual := mock.RunCount(); actual != expectedRuns {
		t.Errorf("expected mock runner %s to run %d times, but it ran %d times",
			mock.name, expectedRuns, actual)
	}
}

// AssertNotRan verifies that a mock runner never ran.
func AssertNotRan[I, O any](t *testing.T, mock *MockRunner[I, O]) {
	t.Helper()
	AssertRan(t, mock, 0)
}

// AssertRanWith verifies the input of the most recent run.
func AssertRanWith[I comparable, O any](t *testing.T, mock *MockRunner[I, O], expectedInput I) {
	t.Helper()
	if mock.RunCount() == 0 {
		t.Errorf("expected mock runner %s to run with input %v, but it never ran",
			mock.name, expectedInput)
		return
	}
	if actual := mock.LastInput(); actual != expectedInput {
		t.Errorf("expected mock runner %s to run with input %v, but it ran with %v",
			mock.name, expectedInput, actual)
	}
}

// AssertFinished verifies that a mock runner's Finish was called n times.
func AssertFinished[I, O any](t *testing.T, mock *MockRunner[I, O], expectedCalls int) {
	t.Helper()
	if actual := mock.FinishCount(); actual != expectedCalls {
		t.Errorf("expected mock runner %s to finish %d times, but it finished %d times",
			mock.name, expectedCalls, actual)
	}
}

// AssertOrder verifies the journal's labels match expected exactly.
func AssertOrder(t *testing.T, journal *Journal, expected ...string) {
	t.Helper()
	if actual := journal.Labels(); !slices.Equal(actual, expected) {
		t.Errorf("expected call order %v, got %v", expected, actual)
	}
}

// AssertResolved verifies that the listener received exactly one final
// result, with the given outcome.
func AssertResolved[F any](t *testing.T, listener *RecordingListener[F], outcome taskz.Outcome) {
	t.Helper()
	successes, failures := len(listener.Successes()), len(listener.Failures())
	switch {
	case successes+failures != 1:
		t.Errorf("expected exactly one final result, got %d successes and %d failures", successes, failures)
	case outcome == taskz.Success && successes != 1:
		t.Errorf("expected a final success, got a final failure")
	case outcome == taskz.Failure && failures != 1:
		t.Errorf("expected a final failure, got a final success")
	}
}

// AssertUnresolved verifies that the listener received nothing.
func AssertUnresolved[F any](t *testing.T, listener *RecordingListener[F]) {
	t.Helper()
	if total := listener.Total(); total != 0 {
		t.Errorf("expected no final result, got %d", total)
	}
}

// ChaosRunner wraps a runner and randomly breaks the task contract: it
// reports failure without running, stays silent, or panics.
type ChaosRunner[I, O any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	wrapped     taskz.Runner[I, O]
	failPayload O
	failureRate float64
	silenceRate float64
	panicRate   float64
	rng         *mathrand.Rand
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	silentCalls int64
	panicCalls  int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64 // Probability of reporting failure instead of running (0.0 to 1.0)
	SilenceRate float64 // Probability of returning without a report (0.0 to 1.0)
	PanicRate   float64 // Probability of panicking (0.0 to 1.0)
	Seed        int64   // Random seed for reproducible chaos (0 for random seed)
}

// NewChaosRunner creates a chaos runner around wrapped. Injected failures
// report failPayload.
func NewChaosRunner[I, O any](wrapped taskz.Runner[I, O], failPayload O, config ChaosConfig) *ChaosRunner[I, O] {
	seed := config.Seed
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			for _, b := range seedBytes {
				seed = seed<<8 | int64(b)
			}
		}
	}

	return &ChaosRunner[I, O]{
		wrapped:     wrapped,
		failPayload: failPayload,
		failureRate: config.FailureRate,
		silenceRate: config.SilenceRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Run implements taskz.Runner with chaos injection.
func (c *ChaosRunner[I, O]) Run(ctx context.Context, task *taskz.Task[I, O]) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	doPanic := c.rng.Float64() < c.panicRate
	doSilence := c.rng.Float64() < c.silenceRate
	doFail := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	switch {
	case doPanic:
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos runner induced panic")
	case doSilence:
		atomic.AddInt64(&c.silentCalls, 1)
		return
	case doFail:
		atomic.AddInt64(&c.failedCalls, 1)
		task.ReportFailure(ctx, c.failPayload)
		return
	}
	c.wrapped.Run(ctx, task)
}

// Finish forwards to the wrapped runner's Finish, if any.
func (c *ChaosRunner[I, O]) Finish(ctx context.Context, output O) {
	if f, ok := c.wrapped.(taskz.Finisher[O]); ok {
		f.Finish(ctx, output)
	}
}

// Stats returns statistics about chaos injection.
func (c *ChaosRunner[I, O]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
		SilentCalls: atomic.LoadInt64(&c.silentCalls),
		PanicCalls:  atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	SilentCalls int64
	PanicCalls  int64
}

// Injected returns the number of calls that did not reach the wrapped runner.
func (s ChaosStats) Injected() int64 {
	return s.FailedCalls + s.SilentCalls + s.PanicCalls
}

// String returns a human-readable representation of the stats.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d, Silent: %d, Panics: %d}",
		s.TotalCalls, s.FailedCalls, s.SilentCalls, s.PanicCalls)
}

// Helper Functions

// WaitForRuns waits for a mock runner to run at least n times, with a
// timeout. Returns true if the expected runs were reached.
func WaitForRuns[I, O any](mock *MockRunner[I, O], expectedRuns int, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if mock.RunCount() >= expectedRuns {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ParallelTest runs a test function in parallel with multiple goroutines.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}

// MeasureLatency measures the latency of a function call.
func MeasureLatency(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}
