package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the exhibition snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.Exporter() == nil {
				return errors.New("export is disabled (export.provider=none)")
			}
			location, n, err := a.Exporter().Export(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d exhibitions to %s\n", n, location)
			return nil
		},
	}
}
