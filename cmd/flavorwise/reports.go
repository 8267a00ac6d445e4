package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	var (
		limit int
		after string
	)

	reportsCmd := &cobra.Command{
		Use:   "reports [id]",
		Short: "List saved savings reports, or show one report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(application) }()

			if len(args) == 1 {
				rep, err := application.Reports().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get report %s: %w", args[0], err)
				}
				if outputFormat == "json" {
					return printJSON(rep)
				}
				return printRecommendations(rep.Recommendations)
			}

			items, err := application.Reports().List(cmd.Context(), limit, after)
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}
			if outputFormat == "json" {
				return printJSON(items)
			}

			table := newTable(os.Stdout, []string{"ID", "Created", "Accounts", "Recommendations", "Total Saving", "Currency"})
			for _, r := range items {
				table.Append([]string{
					r.ID,
					time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
					strconv.Itoa(len(r.Accounts)),
					strconv.Itoa(len(r.Recommendations)),
					fmt.Sprintf("%.3f", r.TotalSaving),
					r.Currency,
				})
			}
			table.Render()
			return nil
		},
	}
	reportsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list")
	reportsCmd.Flags().StringVar(&after, "after", "", "List reports older than this report id")

	rootCmd.AddCommand(reportsCmd)
}
