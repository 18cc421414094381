package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

type statusReport struct {
	Discovered int `json:"discovered"`
	Extracted  int `json:"extracted"`
	Pending    int `json:"pending"`
	Rows       int `json:"rows"`
	Accepted   int `json:"accepted"`
	Skipped    int `json:"skipped"`
	Blocked    int `json:"blocked"`
	Failed     int `json:"failed"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print counts from the URL list and record file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.State().Load(ctx); err != nil {
				return err
			}
			c := a.State().Counts()
			rep := statusReport{Discovered: c.Discovered, Extracted: c.Extracted, Pending: c.Pending}
			err = a.Records().Scan(ctx, func(rec listing.Record) error {
				rep.Rows++
				switch progress.Classify(rec) {
				case progress.OutcomeAccepted:
					rep.Accepted++
				case progress.OutcomeSkipped:
					rep.Skipped++
				case progress.OutcomeBlocked:
					rep.Blocked++
				case progress.OutcomeFailed:
					rep.Failed++
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("scan records: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("write status: %w", err)
			}
			return nil
		},
	}
}
