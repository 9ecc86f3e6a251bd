package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// MaintenanceStore is the store surface the scheduler's housekeeping uses.
type MaintenanceStore interface {
	IDs(ctx context.Context) ([]string, error)
	Vacuum(ctx context.Context) error
}

// ArtifactJanitor deletes rendered pages whose alert is no longer stored.
type ArtifactJanitor interface {
	RemoveStale(liveIDs []string) (int, error)
}

// Scheduler drives the controller on a fixed cadence and interleaves the
// slower housekeeping passes: stale-artifact cleanup and database vacuum.
// All work is serialized; a tick that lands mid-run waits its turn.
type Scheduler struct {
	controller *Controller
	store      MaintenanceStore
	janitor    ArtifactJanitor
	opts       Options

	fetchInterval   time.Duration
	cleanupInterval time.Duration
	vacuumInterval  time.Duration

	clock  clockwork.Clock
	logger *slog.Logger

	mu    sync.Mutex
	ready atomic.Bool
}

// NewScheduler creates a Scheduler around the given controller and
// housekeeping collaborators. The same options apply to every run.
func NewScheduler(controller *Controller, store MaintenanceStore, janitor ArtifactJanitor,
	opts Options, fetchInterval, cleanupInterval, vacuumInterval time.Duration,
	clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		controller:      controller,
		store:           store,
		janitor:         janitor,
		opts:            opts,
		fetchInterval:   fetchInterval,
		cleanupInterval: cleanupInterval,
		vacuumInterval:  vacuumInterval,
		clock:           clock,
		logger:          logger,
	}
}

// CheckReadiness returns nil once at least one run has completed, or an
// error describing why the service is not yet ready.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no fetch run has completed yet")
	}
	return nil
}

// Run executes an immediate first run, then repeats on the fetch interval
// until the context is cancelled. Cleanup and vacuum fire on their own
// longer cadences.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"fetch_interval", s.fetchInterval,
		"cleanup_interval", s.cleanupInterval,
		"vacuum_interval", s.vacuumInterval,
	)

	s.runOnce(ctx)

	fetchTicker := s.clock.NewTicker(s.fetchInterval)
	defer fetchTicker.Stop()
	cleanupTicker := s.clock.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()
	vacuumTicker := s.clock.NewTicker(s.vacuumInterval)
	defer vacuumTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-fetchTicker.Chan():
			s.runOnce(ctx)
		case <-cleanupTicker.Chan():
			s.cleanup(ctx)
		case <-vacuumTicker.Chan():
			s.vacuum(ctx)
		}
	}
}

// runOnce executes one controller run under the scheduler lock. Run errors
// are logged, never fatal: the next tick tries again.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := s.controller.Run(ctx, s.opts); err != nil {
		s.logger.Error("fetch run failed", "error", err)
		return
	}
	s.ready.Store(true)
}

// cleanup removes rendered detail pages for alerts the expiry GC has since
// deleted.
func (s *Scheduler) cleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.store.IDs(ctx)
	if err != nil {
		s.logger.Error("artifact cleanup failed listing alerts", "error", err)
		return
	}
	removed, err := s.janitor.RemoveStale(live)
	if err != nil {
		s.logger.Error("artifact cleanup failed", "error", err)
		return
	}
	s.logger.Info("artifact cleanup complete", "removed", removed, "live", len(live))
}

// vacuum compacts the database file after long stretches of insert and
// delete churn.
func (s *Scheduler) vacuum(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Vacuum(ctx); err != nil {
		s.logger.Error("database vacuum failed", "error", err)
		return
	}
	s.logger.Info("database vacuum complete")
}
