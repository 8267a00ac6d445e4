package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"flavorwise/internal/core"
)

func init() {
	var accountArgs []string

	savingsCmd := &cobra.Command{
		Use:     "savings",
		Short:   "Estimate monthly savings of moving billed usage to Nebius",
		Example: `  flavorwise savings --account 6d3f...:aws_cnr --account 91ab...:gcp_cnr`,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := parseAccounts(accountArgs)
			if err != nil {
				return err
			}

			_, application, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(application) }()

			savings := application.Savings()
			if savings == nil {
				return fmt.Errorf("migration savings require a configured nebius provider")
			}
			rep, err := savings.Run(cmd.Context(), accounts)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(rep)
			}
			fmt.Fprintf(os.Stderr, "report %s\n", rep.ID)
			return printRecommendations(rep.Recommendations)
		},
	}
	savingsCmd.Flags().StringArrayVar(&accountArgs, "account", nil, "Cloud account as id:cloud_type (repeatable)")
	_ = savingsCmd.MarkFlagRequired("account")

	rootCmd.AddCommand(savingsCmd)
}

func parseAccounts(args []string) ([]core.CloudAccount, error) {
	accounts := make([]core.CloudAccount, 0, len(args))
	for _, arg := range args {
		id, cloud, ok := strings.Cut(arg, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid account %q: expected id:cloud_type", arg)
		}
		ct, err := core.ParseCloudType(cloud)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, core.CloudAccount{ID: id, Type: ct})
	}
	return accounts, nil
}

func printRecommendations(recs []core.MigrationRecommendation) error {
	table := newTable(os.Stdout, []string{"Account", "Cloud", "Region", "Flavor", "Usage", "Current", "Nebius Flavor", "Nebius", "Saving", "Currency"})
	var total float64
	for _, r := range recs {
		total += r.Saving
		table.Append([]string{
			r.CloudAccountID,
			string(r.CloudType),
			r.Region,
			r.SourceFlavor,
			fmt.Sprintf("%.3f", r.MonthlyUsage),
			fmt.Sprintf("%.3f", r.CurrentCost),
			r.TargetFlavor,
			fmt.Sprintf("%.3f", r.TargetCost),
			fmt.Sprintf("%.3f", r.Saving),
			r.Currency,
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "", "", "Total", fmt.Sprintf("%.3f", core.Round3(total)), ""})
	table.Render()
	return nil
}
