package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/noaa-alert-relay/internal/adapter/httpadapter"
	"github.com/couchcryptid/noaa-alert-relay/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay continuously with health and metrics endpoints",
	Long: `Polls the alert feed on the configured interval and pushes a notification
for each new alert matching the county watch-list. Stale rendered pages and
database compaction run on their own longer cadences.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

func runRelay() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := pipeline.NewScheduler(
		a.controller, a.store, a.renderer,
		pipeline.Options{DisablePush: a.cfg.PushDisabled},
		a.cfg.FetchInterval, a.cfg.CleanupInterval, a.cfg.VacuumInterval,
		a.clock, a.logger,
	)

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, scheduler, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := scheduler.Run(ctx); err != nil {
			a.logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduler did not stop within shutdown timeout")
	}

	a.logger.Info("shutdown complete")
	return nil
}
