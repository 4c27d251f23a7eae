package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zoobzio/taskz"
	"github.com/zoobzio/taskz/examples/orders"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print snapshots written by demo --out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		snapshots, err := taskz.Decode[[]taskz.Snapshot[int, orders.Result]](data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		w := cmd.OutOrStdout()
		for _, s := range snapshots {
			status := "unresolved"
			if s.Resolved {
				status = s.Outcome + " " + s.Result.Status
			}
			fmt.Fprintf(w, "%s input=%d steps=%d %s\n", s.Name, s.Input, s.Steps, status)
			for _, f := range s.Faults {
				fmt.Fprintf(w, "  fault: %s\n", f)
			}
		}
		return nil
	},
}
