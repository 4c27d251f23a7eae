package taskz

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
)

// node is the type-erased view of a task used to walk a chain.
type node interface {
	Name() Name
	next() (Policy, node, bool)
}

// Step describes one task in a chain schema.
type Step struct {
	Name Name `json:"name"`
	// Policy governs the bridge leaving this task. Empty on the last step.
	Policy Name `json:"policy,omitempty"`
}

// Schema is the wiring of a chain, head first.
type Schema struct {
	Name  Name   `json:"name"`
	Steps []Step `json:"steps"`
}

// Describe walks the chain starting at head and returns its schema.
// It returns ErrCycle if the wiring loops back onto a task already seen.
//
//	schema, err := taskz.Describe("orders", query)
//	// schema.Steps: query -then-> reserve -follow-> check
func Describe[I, O any](name Name, head *Task[I, O]) (Schema, error) {
	return describe(name, head)
}

func describe(name Name, head node) (Schema, error) {
	schema := Schema{Name: name}
	seen := make(map[node]bool)
	for current := head; current != nil; {
		if seen[current] {
			return schema, fmt.Errorf("%w: %q reached twice", ErrCycle, current.Name())
		}
		seen[current] = true

		step := Step{Name: current.Name()}
		policy, next, ok := current.next()
		if ok {
			step.Policy = policy.Name()
		}
		schema.Steps = append(schema.Steps, step)
		current = next
	}
	return schema, nil
}

// Names returns the task names in chain order.
func (s Schema) Names() []Name {
	names := make([]Name, len(s.Steps))
	for i, step := range s.Steps {
		names[i] = step.Name
	}
	return names
}

// JSON renders the schema as indented JSON.
func (s Schema) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DOT renders the schema as a Graphviz digraph. Gated edges are solid,
// every other policy is dashed; edges are labelled with the policy name.
//
//	dot, _ := schema.DOT()
//	// digraph orders { "query"->"reserve"[ label=then ... ] ... }
func (s Schema) DOT() (string, error) {
	graph := gographviz.NewGraph()
	graphName := strconv.Quote(s.Name)
	if err := graph.SetName(graphName); err != nil {
		return "", err
	}
	if err := graph.SetDir(true); err != nil {
		return "", err
	}
	if err := graph.AddAttr(graphName, "rankdir", "LR"); err != nil {
		return "", err
	}

	for i, step := range s.Steps {
		attrs := map[string]string{"shape": "box"}
		if i == len(s.Steps)-1 {
			attrs["shape"] = "doublecircle"
		}
		if err := graph.AddNode(graphName, strconv.Quote(step.Name), attrs); err != nil {
			return "", err
		}
	}

	for i := 0; i+1 < len(s.Steps); i++ {
		from, to := s.Steps[i], s.Steps[i+1]
		attrs := map[string]string{"label": strconv.Quote(from.Policy)}
		if from.Policy != GatedPolicyName {
			attrs["style"] = "dashed"
		}
		if err := graph.AddEdge(strconv.Quote(from.Name), strconv.Quote(to.Name), true, attrs); err != nil {
			return "", err
		}
	}

	return graph.String(), nil
}
