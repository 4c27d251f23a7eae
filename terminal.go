package taskz

import (
	"context"
	"sync"
	"time"
)

// Terminal lets a runner conclude the whole pipeline with a final result of
// type F, independent of where it sits in the chain. Embed it by value in a
// runner and let the assembler inject the shared listener:
//
//	type Check struct {
//	    taskz.Terminal[Result]
//	}
//
//	func (c *Check) Run(ctx context.Context, t *taskz.Task[Reservation, Result]) {
//	    r := t.Input()
//	    if !r.Reserved {
//	        res := Result{Status: "FAILED_INVENTORY"}
//	        c.ReportFinalFailure(ctx, res)
//	        t.ReportFailure(ctx, res)
//	        return
//	    }
//	    ...
//	}
//
// Final reports bypass bridges entirely. Without an injected listener they
// are dropped.
type Terminal[F any] struct {
	listener Listener[F]
	mu       sync.RWMutex
}

// TerminalSetter is implemented by anything that accepts the shared listener.
// Runners embedding Terminal satisfy it through a pointer.
type TerminalSetter[F any] interface {
	SetTerminalListener(listener Listener[F])
}

// SetTerminalListener injects the shared final-outcome sink.
func (t *Terminal[F]) SetTerminalListener(listener Listener[F]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

// TerminalListener returns the injected listener, or nil.
func (t *Terminal[F]) TerminalListener() Listener[F] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listener
}

// ReportFinalSuccess delivers result to the listener's Success.
func (t *Terminal[F]) ReportFinalSuccess(ctx context.Context, result F) {
	t.reportFinal(ctx, Success, result)
}

// ReportFinalFailure delivers result to the listener's Failed.
func (t *Terminal[F]) ReportFinalFailure(ctx context.Context, result F) {
	t.reportFinal(ctx, Failure, result)
}

func (t *Terminal[F]) reportFinal(ctx context.Context, outcome Outcome, result F) {
	listener := t.TerminalListener()
	if listener == nil {
		return
	}

	exec := executionFrom(ctx)
	if !exec.claimTerminal(outcome) {
		f := frameFrom(ctx)
		exec.fault(ctx, &Error[F]{
			Timestamp: time.Now(),
			InputData: result,
			Err:       ErrDuplicateTerminal,
			Path:      exec.pathTo(f.step),
			Step:      f.step,
		})
		return
	}

	if outcome == Success {
		listener.Success(ctx, result)
		return
	}
	listener.Failed(ctx, result)
}
