// Package main is the entry point for flavorwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flavorwise/config"
	"flavorwise/internal/app"
	"flavorwise/internal/logging"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "flavorwise",
	Short: "Resolve cloud flavor prices and estimate savings from moving to Nebius",
	Long: `flavorwise prices compute flavors across AWS, Azure, Alibaba, GCP and Nebius,
finds cheaper equivalents, and estimates the monthly saving of migrating
billed usage to the closest Nebius flavor.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv("FLAVORWISE_CONFIG", cfgFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
}

func main() {
	// Cancelled on SIGINT/SIGTERM: serve shuts down gracefully, find and
	// savings abandon in-flight lookups.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadApp loads the configuration, installs the logger and builds the app.
func loadApp(ctx context.Context) (*config.Config, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.Log.Format, cfg.Log.Level)

	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return cfg, application, nil
}

func shutdown(application *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Shutdown(ctx)
}
