package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"flavorwise/internal/core"
)

var findReq core.FindRequest

func init() {
	var (
		cloud        string
		resourceType string
		mode         string
		candidates   bool
	)

	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Price a flavor or search for cheaper candidates",
		Example: `  flavorwise find --cloud aws_cnr --region us-east-1 --flavor m5.xlarge
  flavorwise find --cloud gcp_cnr --region us-central1 --flavor e2-standard-4 --mode search_relevant --candidates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := core.ParseCloudType(cloud)
			if err != nil {
				return err
			}
			findReq.CloudType = ct
			findReq.ResourceType = core.ResourceType(resourceType)
			findReq.Mode = core.Mode(mode)

			_, application, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(application) }()

			var records []core.FlavorRecord
			if candidates {
				records, err = application.Resolver().FindCandidates(cmd.Context(), findReq)
			} else {
				var rec *core.FlavorRecord
				rec, err = application.Resolver().FindFlavor(cmd.Context(), findReq)
				if rec != nil {
					records = []core.FlavorRecord{*rec}
				}
			}
			if err != nil {
				return err
			}
			return printFlavors(records)
		},
	}

	f := findCmd.Flags()
	f.StringVar(&cloud, "cloud", "", "Cloud type (aws_cnr, azure_cnr, alibaba_cnr, gcp_cnr, nebius)")
	f.StringVar(&resourceType, "resource-type", string(core.ResourceInstance), "Resource type (instance, rds_instance)")
	f.StringVar(&mode, "mode", string(core.ModeCurrent), "Lookup mode (current, search_relevant, search_no_relevant)")
	f.BoolVar(&candidates, "candidates", false, "List every matching flavor instead of the cheapest")
	f.StringVar(&findReq.Region, "region", "", "Region name")
	f.StringVar(&findReq.FamilySpecs.SourceFlavorID, "flavor", "", "Source flavor id")
	f.IntVar(&findReq.FamilySpecs.CPUMin, "cpu-min", 0, "Minimum vCPU count (0 is unbounded)")
	f.IntVar(&findReq.FamilySpecs.CPUMax, "cpu-max", 0, "Maximum vCPU count (0 is unbounded)")
	f.Int64Var(&findReq.FamilySpecs.RAMMin, "ram-min", 0, "Minimum RAM in MiB (0 is unbounded)")
	f.Int64Var(&findReq.FamilySpecs.RAMMax, "ram-max", 0, "Maximum RAM in MiB (0 is unbounded)")
	f.StringVar(&findReq.OSType, "os", "", "Operating system")
	f.StringVar(&findReq.Preinstalled, "preinstalled", "", "Preinstalled software (AWS)")
	f.StringVar(&findReq.MeterID, "meter-id", "", "Billing meter id (Azure)")
	f.StringVar(&findReq.Currency, "currency", "", "Price currency")
	f.IntVar(&findReq.CPU, "cpu", 0, "Exact vCPU count (Nebius)")
	_ = findCmd.MarkFlagRequired("cloud")

	rootCmd.AddCommand(findCmd)
}

func printFlavors(records []core.FlavorRecord) error {
	if outputFormat == "json" {
		return printJSON(records)
	}

	table := newTable(os.Stdout, []string{"Provider", "Region", "Flavor", "CPU", "RAM (MiB)", "Price", "Currency"})
	for _, r := range records {
		table.Append([]string{
			string(r.Provider),
			r.Region,
			r.FlavorID,
			strconv.Itoa(r.CPU),
			strconv.FormatInt(r.RAM, 10),
			fmt.Sprintf("%.4f", r.Price),
			r.Currency,
		})
	}
	table.Render()
	return nil
}
