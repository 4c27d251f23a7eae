package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "taskz",
		Short: "Typed task chain demos and inspection",
		Long: `taskz is a CLI tool for exploring typed task chains.

Run the order assembler against sample ids, render the wiring of the
chain as JSON or Graphviz, and inspect recorded run snapshots.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(inspectCmd)
}
