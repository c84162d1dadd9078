package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/exhibitions-crawler/internal/clock/system"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read from the exhibition store",
	}

	var filter store.ExhibitionFilter
	exhibitions := &cobra.Command{
		Use:   "exhibitions",
		Short: "List exhibitions filtered by city, country or artist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f := filter
			f.Today = system.New().Today()
			rows, err := a.Repository().Exhibitions(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("query exhibitions: %w", err)
			}
			return printJSON(cmd, rows)
		},
	}
	exhibitions.Flags().StringVar(&filter.City, "city", "", "city name")
	exhibitions.Flags().StringVar(&filter.Country, "country", "", "country name")
	exhibitions.Flags().StringVar(&filter.Artist, "artist", "", "artist name (substring)")
	exhibitions.Flags().BoolVar(&filter.CurrentOnly, "current", false, "only exhibitions that have not ended")

	var limit int
	search := &cobra.Command{
		Use:   "search <terms>",
		Short: "Full-text search over titles, summaries and artists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := a.Repository().SearchText(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return printJSON(cmd, rows)
		},
	}
	search.Flags().IntVar(&limit, "limit", 50, "maximum results")

	cities := &cobra.Command{
		Use:   "cities",
		Short: "Rank cities by current exhibitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := a.Repository().CitiesRanked(cmd.Context(), system.New().Today())
			if err != nil {
				return fmt.Errorf("rank cities: %w", err)
			}
			return printJSON(cmd, rows)
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize store contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.Repository().Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			return printJSON(cmd, st)
		},
	}

	cmd.AddCommand(exhibitions, search, cities, stats)
	return cmd
}
