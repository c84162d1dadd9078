package cmd

import (
	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl sites and store their exhibitions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "due",
			Short: "Crawl sites never crawled or past the rescrape interval",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				res, err := a.Scheduler().RunDue(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			},
		},
		&cobra.Command{
			Use:   "all",
			Short: "Crawl every registered site",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				res, err := a.Scheduler().RunAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			},
		},
		&cobra.Command{
			Use:   "site <name>",
			Short: "Crawl one site by name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				res, err := a.Scheduler().RunSite(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			},
		},
	)
	return cmd
}
