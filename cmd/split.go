package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/discovery"
)

func newSplitCmd() *cobra.Command {
	var (
		out      string
		fromYear int
		toYear   int
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Bisect the year span until no search hits the page ceiling",
		Long: `split probes the configured search for a span of first-registration years
and halves any range whose results are capped by the site's page ceiling.
The resulting search URLs are written one per line to the search list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			if cfg.Search.Base == "" {
				return fmt.Errorf("search.base is required")
			}
			if fromYear == 0 {
				fromYear = cfg.Search.Split.FromYear
			}
			if toYear == 0 {
				toYear = cfg.Search.Split.ToYear
			}
			if out == "" {
				out = cfg.Paths.SearchList
			}

			driver := a.NewDriver(a.Pacer())
			ranges, err := a.Splitter(driver).Split(cmd.Context(), fromYear, toYear)
			if err != nil {
				return err
			}
			search := a.SearchURL()
			urls := make([]string, 0, len(ranges))
			for _, r := range ranges {
				u, err := search.ForRange(r)
				if err != nil {
					return err
				}
				urls = append(urls, u)
			}
			if err := discovery.WriteSearchList(out, urls); err != nil {
				return err
			}
			a.Logger().Info("Search list written",
				zap.String("path", out),
				zap.Int("ranges", len(ranges)),
				zap.Stringers("years", ranges),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "search list to write (default paths.search_list)")
	cmd.Flags().IntVar(&fromYear, "from", 0, "first year (default search.split.from_year)")
	cmd.Flags().IntVar(&toYear, "to", 0, "last year (default search.split.to_year)")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	return cmd
}
