package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/taskz/examples/orders"
)

var (
	schemaFormat string

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Print the wiring of the order chain",
		Long:  "Print the order chain as JSON or as a Graphviz digraph (pipe into `dot -Tsvg`).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			assembler := orders.NewAssembler(orders.DefaultConfig(), nil).Assemble()
			defer assembler.Close()

			schema, err := assembler.Pipeline().Schema()
			if err != nil {
				return err
			}

			var out string
			switch schemaFormat {
			case "json":
				data, err := schema.JSON()
				if err != nil {
					return err
				}
				out = string(data)
			case "dot":
				if out, err = schema.DOT(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want json or dot)", schemaFormat)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
)

func init() {
	schemaCmd.Flags().StringVar(&schemaFormat, "format", "dot", "Output format: dot or json")
}
