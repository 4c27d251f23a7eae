package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/taskz"
	"github.com/zoobzio/taskz/examples/orders"
	"github.com/zoobzio/tracez"
)

var (
	demoIDs       []int
	demoThreshold int
	demoDispatch  string
	demoOut       string
	demoTrace     bool

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run the order chain for a list of ids",
		Long: `Run the order chain query --then--> reserve --follow--> check.

Even ids are found, odd ids are missing. Amounts equal the id and are
reserved when they do not exceed the threshold. The defaults cover the
three interesting paths: completed, missing (no final result) and failed
inventory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dispatch, err := parseDispatch(demoDispatch)
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), dispatch)
		},
	}
)

func init() {
	demoCmd.Flags().IntSliceVar(&demoIDs, "id", []int{100, 101, 200}, "Order ids to run")
	demoCmd.Flags().IntVar(&demoThreshold, "threshold", orders.DefaultConfig().InventoryThreshold, "Largest amount that can be reserved")
	demoCmd.Flags().StringVar(&demoDispatch, "dispatch", taskz.DispatchDirect.String(), "Dispatch mode: direct or iterative")
	demoCmd.Flags().StringVar(&demoOut, "out", "", "Write msgpack snapshots of every run to this file")
	demoCmd.Flags().BoolVar(&demoTrace, "trace", false, "Print pipeline spans")
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[37m"
)

func parseDispatch(s string) (taskz.Dispatch, error) {
	switch strings.ToLower(s) {
	case "", taskz.DispatchDirect.String():
		return taskz.DispatchDirect, nil
	case taskz.DispatchIterative.String():
		return taskz.DispatchIterative, nil
	default:
		return 0, fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// printer reports final results as they arrive and keeps the last one for
// the snapshot.
type printer struct {
	w        io.Writer
	last     orders.Result
	outcome  taskz.Outcome
	resolved bool
}

func (p *printer) Success(_ context.Context, r orders.Result) {
	p.last, p.outcome, p.resolved = r, taskz.Success, true
	fmt.Fprintf(p.w, "  %s✓ %s%s (order %d, amount %d)\n", colorGreen, r.Status, colorReset, r.OrderID, r.Amount)
}

func (p *printer) Failed(_ context.Context, r orders.Result) {
	p.last, p.outcome, p.resolved = r, taskz.Failure, true
	fmt.Fprintf(p.w, "  %s✗ %s%s (order %d, amount %d)\n", colorRed, r.Status, colorReset, r.OrderID, r.Amount)
}

func runDemo(ctx context.Context, w io.Writer, dispatch taskz.Dispatch) error {
	if ctx == nil {
		ctx = context.Background()
	}

	config := orders.DefaultConfig()
	config.InventoryThreshold = demoThreshold
	config.Dispatch = dispatch

	out := &printer{w: w}
	assembler := orders.NewAssembler(config, out).Assemble()
	defer assembler.Close()

	pipeline := assembler.Pipeline()
	if demoTrace {
		pipeline.Tracer().OnSpanComplete(func(span tracez.Span) {
			fmt.Fprintf(w, "  %s· %s %v%s\n", colorGray, span.Name, span.Tags, colorReset)
		})
	}

	var snapshots []taskz.Snapshot[int, orders.Result]
	for _, id := range demoIDs {
		out.resolved = false
		assembler.Audit().Reset()
		fmt.Fprintf(w, "order %d (threshold %d, %s dispatch)\n", id, config.InventoryThreshold, dispatch)

		err := assembler.Run(ctx, id)
		for _, entry := range assembler.Audit().Entries() {
			fmt.Fprintf(w, "  %s· %s%s\n", colorGray, entry, colorReset)
		}
		if !out.resolved {
			fmt.Fprintf(w, "  %s– no final result%s\n", colorYellow, colorReset)
		}

		snap := taskz.NewSnapshot(pipeline, id, err)
		if out.resolved {
			snap.Resolve(out.outcome, out.last)
		}
		if err != nil {
			fmt.Fprintf(w, "  %s! %v%s\n", colorRed, err, colorReset)
		}
		snapshots = append(snapshots, snap)
	}

	m := pipeline.Metrics()
	fmt.Fprintf(w, "\nruns=%.0f resolved=%.0f unresolved=%.0f faults=%.0f\n",
		m.Counter(taskz.PipelineRunsTotal).Value(),
		m.Counter(taskz.PipelineResolvedTotal).Value(),
		m.Counter(taskz.PipelineUnresolvedTotal).Value(),
		m.Counter(taskz.PipelineFaultsTotal).Value(),
	)

	if demoOut == "" {
		return nil
	}
	data, err := taskz.Encode(snapshots)
	if err != nil {
		return fmt.Errorf("encode snapshots: %w", err)
	}
	if err := os.WriteFile(demoOut, data, 0o600); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	fmt.Fprintf(w, "wrote %d snapshots to %s\n", len(snapshots), demoOut)
	return nil
}
