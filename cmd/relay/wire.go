package main

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/noaa-alert-relay/internal/adapter/kafka"
	"github.com/couchcryptid/noaa-alert-relay/internal/adapter/noaa"
	"github.com/couchcryptid/noaa-alert-relay/internal/adapter/pushover"
	"github.com/couchcryptid/noaa-alert-relay/internal/config"
	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/fetch"
	"github.com/couchcryptid/noaa-alert-relay/internal/observability"
	"github.com/couchcryptid/noaa-alert-relay/internal/pipeline"
	"github.com/couchcryptid/noaa-alert-relay/internal/render"
	"github.com/couchcryptid/noaa-alert-relay/internal/store"
)

// app holds the wired service graph shared by the serve and once commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	store      *store.Store
	renderer   *render.Renderer
	controller *pipeline.Controller

	kafkaWriter *kafkaadapter.Writer
}

// newApp loads configuration and wires every component of the relay.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	counties, err := cfg.Counties(logger)
	if err != nil {
		return nil, err
	}
	watchlist := domain.NewWatchlist(counties, logger)
	logger.Info("watch-list loaded", "counties", watchlist.Len(), "file", cfg.CountiesFile)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	renderer, err := render.New(cfg.OutputDir, cfg.Template, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	httpClient := fetch.NewClient(fetch.Config{Timeout: cfg.HTTPTimeout}, clock, logger)
	source := noaa.NewClient(cfg.NOAAAPIURL, cfg.UserAgent, httpClient, clock, logger)
	notifier := pushover.NewClient(cfg.PushoverAPIURL, cfg.PushoverToken, cfg.PushoverUser, httpClient, clock, logger)

	// Matched-alert export (feature-flagged via KAFKA_ENABLED).
	var exporter pipeline.Exporter
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		exporter = kafkaWriter
		logger.Info("matched-alert export enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("matched-alert export disabled")
	}

	controller := pipeline.NewController(pipeline.ControllerConfig{
		Source:        source,
		Store:         st,
		Watchlist:     watchlist,
		Notifier:      notifier,
		Renderer:      renderer,
		Exporter:      exporter,
		IgnoredEvents: cfg.IgnoredEvents,
		BaseURL:       cfg.BaseURL,
		Clock:         clock,
		Logger:        logger,
		Metrics:       metrics,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
		store:       st,
		renderer:    renderer,
		controller:  controller,
		kafkaWriter: kafkaWriter,
	}, nil
}

// Close releases the app's long-lived resources.
func (a *app) Close() {
	if a.kafkaWriter != nil {
		if err := a.kafkaWriter.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}
