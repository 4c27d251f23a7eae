package taskz

// Decision is what a policy tells a bridge to do with an outcome.
type Decision int

const (
	// Truncate stops the chain at the current task.
	Truncate Decision = iota
	// Forward hands the payload to the next task and runs it.
	Forward
)

// String returns the decision label.
func (d Decision) String() string {
	if d == Forward {
		return "forward"
	}
	return "truncate"
}

// Policy governs propagation across a bridge. The bridge always calls the
// current task's Finish first, then asks the policy whether the next task
// runs with the payload.
//
// Gated and Unconditional cover the two composition operators. New
// behaviours plug in here without touching Task or Bridge.
type Policy interface {
	Name() Name
	Decide(outcome Outcome) Decision
}

// AbortPolicy is implemented by policies that handle Task.Abort. Forward
// passes the abort on to the next task without running it. Policies that
// do not implement it stop an abort at their bridge.
type AbortPolicy interface {
	DecideAbort() Decision
}

func decideAbort(p Policy) Decision {
	if a, ok := p.(AbortPolicy); ok {
		return a.DecideAbort()
	}
	return Truncate
}

// Policy names.
const (
	GatedPolicyName         Name = "then"
	UnconditionalPolicyName Name = "follow"
)

type gated struct{}

func (gated) Name() Name { return GatedPolicyName }

func (gated) Decide(outcome Outcome) Decision {
	if outcome == Success {
		return Forward
	}
	return Truncate
}

func (gated) DecideAbort() Decision { return Forward }

type unconditional struct{}

func (unconditional) Name() Name { return UnconditionalPolicyName }

func (unconditional) Decide(Outcome) Decision { return Forward }

func (unconditional) DecideAbort() Decision { return Truncate }

// Built-in policies.
var (
	// Gated continues only on success. A failure truncates the chain and
	// produces no terminal notification unless a task reports one itself.
	// An abort passes through to every task downstream.
	Gated Policy = gated{}

	// Unconditional continues on success and on failure. The next task
	// receives whichever payload occurred and interprets it. An abort
	// stops here.
	Unconditional Policy = unconditional{}
)

type policyFunc struct {
	fn   func(Outcome) Decision
	name Name
}

func (p policyFunc) Name() Name { return p.name }

func (p policyFunc) Decide(outcome Outcome) Decision { return p.fn(outcome) }

// NewPolicy builds a Policy from a decision function.
//
// Example - run a compensating task only when the previous one failed:
//
//	onFailure := taskz.NewPolicy("on-failure", func(o taskz.Outcome) taskz.Decision {
//	    if o == taskz.Failure {
//	        return taskz.Forward
//	    }
//	    return taskz.Truncate
//	})
//	taskz.Link(charge, refund, onFailure)
func NewPolicy(name Name, decide func(Outcome) Decision) Policy {
	return policyFunc{name: name, fn: decide}
}
