package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/noaa-alert-relay/internal/pipeline"
)

var (
	oncePurge  bool
	onceNoPush bool

	onceCmd = &cobra.Command{
		Use:   "once",
		Short: "Run a single fetch-match-notify cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce()
		},
	}
)

func init() {
	onceCmd.Flags().BoolVar(&oncePurge, "purge", false, "drop every stored alert before fetching")
	onceCmd.Flags().BoolVar(&onceNoPush, "nopush", false, "render matches without sending notifications")
}

func runOnce() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		Purge:       oncePurge,
		DisablePush: onceNoPush || a.cfg.PushDisabled,
	}

	res, err := a.controller.Run(ctx, opts)
	if err != nil {
		return err
	}

	a.logger.Info("single run complete",
		"fetched", res.Fetched,
		"skipped", res.Skipped,
		"inserted", res.Inserted,
		"matched", res.Matched,
		"ignored", res.Ignored,
		"notified", res.Notified,
		"deleted", res.Deleted,
	)
	return nil
}
