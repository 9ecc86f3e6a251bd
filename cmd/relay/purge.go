package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/noaa-alert-relay/internal/config"
	"github.com/couchcryptid/noaa-alert-relay/internal/observability"
	"github.com/couchcryptid/noaa-alert-relay/internal/store"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored alert and compact the database",
	Long: `Empties the alert store so the next run treats every current alert as new.
Rendered detail pages are left for the cleanup pass to reclaim.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return purge()
	},
}

func purge() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	deleted, err := st.DeleteAll(ctx)
	if err != nil {
		return err
	}
	if err := st.Vacuum(ctx); err != nil {
		return err
	}

	logger.Info("purge complete", "deleted", deleted, "db", cfg.DBPath)
	return nil
}
