package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage the site registry",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file.csv>",
			Short: "Upsert sites from a city,country,museum,url CSV",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open registry: %w", err)
				}
				defer func() { _ = f.Close() }()
				sites, err := store.ReadSites(f)
				if err != nil {
					return err
				}
				n, err := a.Repository().ImportSites(cmd.Context(), sites)
				if err != nil {
					return fmt.Errorf("import sites: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d sites\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered sites with their crawl status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				sites, err := a.Repository().AllSites(cmd.Context())
				if err != nil {
					return fmt.Errorf("list sites: %w", err)
				}
				return printJSON(cmd, sites)
			},
		},
	)
	return cmd
}
