package taskz

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Contract violations recorded while a chain executes.
var (
	// ErrNoOutcome means a task returned from Run without reporting.
	ErrNoOutcome = errors.New("task returned without reporting an outcome")
	// ErrDuplicateOutcome means a task reported more than once in one invocation.
	ErrDuplicateOutcome = errors.New("task reported more than one outcome")
	// ErrDuplicateTerminal means a second final outcome reached the listener.
	ErrDuplicateTerminal = errors.New("terminal listener already notified")
	// ErrPanic wraps a panic recovered from a task.
	ErrPanic = errors.New("task panicked")
	// ErrCycle means the wiring loops back onto a task already in the chain.
	ErrCycle = errors.New("chain contains a cycle")
)

// Error records a contract violation raised by a task, together with
// where in the chain it happened and the input the task was holding.
//
// Failures reported through ReportFailure are never errors; Error only
// describes programming faults (missing or duplicate reports, panics,
// duplicate terminal notifications).
//
//	if err := pipeline.Run(ctx, 100); err != nil {
//	    var fault *taskz.Error[int]
//	    if errors.As(err, &fault) {
//	        log.Printf("fault at %s (step %d): %v",
//	            strings.Join(fault.Path, " -> "), fault.Step, fault.Err)
//	    }
//	}
type Error[T any] struct {
	Timestamp time.Time
	InputData T
	Err       error
	Path      []Name
	Step      int
}

// Error implements the error interface.
func (e *Error[T]) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := strings.Join(e.Path, " -> ")
	if e.Step > 0 {
		return fmt.Sprintf("%s (step %d): %v", path, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", path, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error[T]) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsPanic reports whether the fault came from a recovered panic.
func (e *Error[T]) IsPanic() bool {
	if e == nil {
		return false
	}
	return errors.Is(e.Err, ErrPanic)
}

// panicError carries a sanitized panic message.
type panicError struct {
	taskName  Name
	sanitized string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in task %q: %s", p.taskName, p.sanitized)
}

func (*panicError) Unwrap() error {
	return ErrPanic
}

var (
	memoryAddress = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	filePath      = regexp.MustCompile(`(^|\s)(/|[A-Za-z]:\\)[^\s]*\.go:\d+`)
)

// sanitizePanicMessage strips addresses, file paths and stack traces from a
// recovered panic value before it is stored in an error.
func sanitizePanicMessage(r any) string {
	if r == nil {
		return "unknown panic (nil value)"
	}

	var msg string
	switch v := r.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}

	if len(msg) > 200 {
		return "panic occurred (message truncated for security)"
	}
	if strings.Contains(msg, "goroutine ") || strings.Contains(msg, "runtime.") {
		return "panic occurred (stack trace sanitized)"
	}
	if filePath.MatchString(msg) {
		return "panic occurred (file path sanitized)"
	}
	msg = memoryAddress.ReplaceAllString(msg, "0x***")
	return "panic occurred: " + msg
}
