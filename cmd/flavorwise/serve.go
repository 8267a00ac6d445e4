package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, application, err := loadApp(ctx)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Start(":" + cfg.Server.Port)
			}()

			select {
			case err := <-errCh:
				if shutdownErr := shutdown(application); shutdownErr != nil {
					slog.Error("application shutdown error", "error", shutdownErr)
				}
				return err
			case <-ctx.Done():
				slog.Info("received shutdown signal")
			}
			return shutdown(application)
		},
	})
}
