package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCondenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "condense <url>",
		Short: "Fetch and condense one page, printing text, anchors and timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			bundle, err := a.Condenser().CondenseURL(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("condense %s: %w", args[0], err)
			}
			return printJSON(cmd, bundle)
		},
	}
}
