// Package pipeline orchestrates one fetch-dedup-match-notify run and the
// recurring schedule around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/observability"
)

// expiryWindow is how far behind the current time an alert's expiry may fall
// before the pre-run GC pass removes it.
const expiryWindow = 24 * time.Hour

// FeedSource retrieves the upstream alert feed and per-alert details.
type FeedSource interface {
	Feed(ctx context.Context) (*domain.Feed, error)
	Detail(ctx context.Context, apiURL string) (domain.Detail, error)
}

// Store is the durable alert collection the run dedups against.
type Store interface {
	InsertIfAbsent(ctx context.Context, alert domain.Alert) (bool, error)
	SelectByBatch(ctx context.Context, batch int64) ([]domain.Alert, error)
	DeleteExpired(ctx context.Context, beforeEpoch int64) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Notifier delivers one push notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Renderer writes the detail page for a matched alert and returns its path.
type Renderer interface {
	Render(alert domain.Alert, detail domain.Detail) (string, error)
}

// Exporter publishes the run's matched alerts to downstream consumers.
// Optional; export failures never affect notification delivery.
type Exporter interface {
	ExportMatches(ctx context.Context, alerts []domain.Alert) error
}

// Options tune a single run.
type Options struct {
	// Purge drops every stored alert before fetching instead of the normal
	// expiry GC pass. Every current alert then counts as new.
	Purge bool

	// DisablePush renders and logs matches without sending notifications.
	DisablePush bool
}

// Result summarizes what one run did.
type Result struct {
	Fetched  int
	Skipped  int
	Inserted int
	Matched  int
	Ignored  int
	Notified int
	Deleted  int64
}

// ControllerConfig wires a Controller's collaborators.
type ControllerConfig struct {
	Source    FeedSource
	Store     Store
	Watchlist *domain.Watchlist
	Notifier  Notifier
	Renderer  Renderer
	Exporter  Exporter // nil disables export

	IgnoredEvents []string
	BaseURL       string // optional host for rendered detail pages

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Controller executes the fetch-dedup-match-notify sequence. It holds no
// per-run state; the caller serializes runs.
type Controller struct {
	source    FeedSource
	store     Store
	watchlist *domain.Watchlist
	notifier  Notifier
	renderer  Renderer
	exporter  Exporter
	ignored   map[string]bool
	baseURL   string
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewController creates a Controller from its wired collaborators.
func NewController(cfg ControllerConfig) *Controller {
	ignored := make(map[string]bool, len(cfg.IgnoredEvents))
	for _, event := range cfg.IgnoredEvents {
		ignored[strings.ToLower(event)] = true
	}
	return &Controller{
		source:    cfg.Source,
		store:     cfg.Store,
		watchlist: cfg.Watchlist,
		notifier:  cfg.Notifier,
		renderer:  cfg.Renderer,
		exporter:  cfg.Exporter,
		ignored:   ignored,
		baseURL:   cfg.BaseURL,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Run executes one complete cycle: expiry GC (or purge), feed fetch,
// normalization, deduplicating insert, watch-list match, and notification.
// A soft feed failure ends the run cleanly with nothing processed.
func (c *Controller) Run(ctx context.Context, opts Options) (Result, error) {
	start := c.clock.Now()
	var res Result

	deleted, err := c.collectGarbage(ctx, opts.Purge)
	if err != nil {
		c.metrics.RunsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	res.Deleted = deleted

	// The run's batch identifier. Alerts inserted under it are this run's
	// new arrivals; everything else in the feed was already known.
	batch := c.clock.Now().UTC().Unix()

	feed, err := c.source.Feed(ctx)
	if err != nil {
		c.metrics.RunsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("fetch feed: %w", err)
	}
	if feed == nil {
		c.logger.Warn("feed unavailable, ending run with nothing processed")
		c.metrics.RunsTotal.WithLabelValues("soft_failure").Inc()
		return res, nil
	}

	res.Fetched = len(feed.Features)
	c.metrics.AlertsFetched.Add(float64(res.Fetched))

	for _, entry := range feed.Features {
		alert, err := domain.ParseFeedEntry(entry.Properties, batch)
		if err != nil {
			if errors.Is(err, domain.ErrMissingID) {
				c.logger.Warn("skipping feed entry without identifier", "event", entry.Properties.Event)
				c.metrics.AlertsSkipped.Inc()
				res.Skipped++
				continue
			}
			c.metrics.RunsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("normalize feed entry: %w", err)
		}

		inserted, err := c.store.InsertIfAbsent(ctx, alert)
		if err != nil {
			c.metrics.RunsTotal.WithLabelValues("error").Inc()
			return res, err
		}
		if inserted {
			res.Inserted++
		}
	}
	c.metrics.AlertsInserted.Add(float64(res.Inserted))

	fresh, err := c.store.SelectByBatch(ctx, batch)
	if err != nil {
		c.metrics.RunsTotal.WithLabelValues("error").Inc()
		return res, err
	}

	matched := c.watchlist.MatchAlerts(fresh)
	res.Matched = len(matched)
	c.metrics.AlertsMatched.Add(float64(res.Matched))

	notified := c.dispatch(ctx, matched, opts.DisablePush, &res)

	if c.exporter != nil && len(matched) > 0 {
		if err := c.exporter.ExportMatches(ctx, matched); err != nil {
			c.logger.Error("matched-alert export failed", "error", err, "count", len(matched))
		}
	}

	c.metrics.RunDuration.Observe(c.clock.Since(start).Seconds())
	c.metrics.LastSuccessTime.Set(float64(c.clock.Now().Unix()))
	c.metrics.RunsTotal.WithLabelValues("success").Inc()

	c.logger.Info("run complete",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"matched", res.Matched,
		"notified", notified,
		"deleted", res.Deleted,
	)
	return res, nil
}

// collectGarbage runs the pre-fetch store maintenance: either the full purge
// or the normal expiry pass.
func (c *Controller) collectGarbage(ctx context.Context, purge bool) (int64, error) {
	if purge {
		deleted, err := c.store.DeleteAll(ctx)
		if err != nil {
			return 0, err
		}
		c.logger.Info("purged stored alerts", "deleted", deleted)
		return deleted, nil
	}

	cutoff := c.clock.Now().UTC().Add(-expiryWindow).Unix()
	deleted, err := c.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.metrics.ExpiredDeleted.Add(float64(deleted))
		c.logger.Info("removed expired alerts", "deleted", deleted)
	}
	return deleted, nil
}

// dispatch renders and notifies each matched alert. Failures on one alert
// never abort the others: a detail fetch error skips that alert, a render
// error falls back to the upstream alert page, and a delivery error is
// logged and counted.
func (c *Controller) dispatch(ctx context.Context, matched []domain.Alert, disablePush bool, res *Result) int {
	for _, alert := range matched {
		if c.ignored[strings.ToLower(alert.Event)] {
			c.logger.Info("ignoring matched alert", "event", alert.Event, "id", alert.ID)
			c.metrics.AlertsIgnored.Inc()
			res.Ignored++
			continue
		}

		detail, err := c.source.Detail(ctx, alert.APIURL)
		if err != nil {
			c.logger.Error("detail fetch failed, skipping alert", "id", alert.ID, "error", err)
			continue
		}

		rendered := true
		if _, err := c.renderer.Render(alert, detail); err != nil {
			c.logger.Error("render failed", "id", alert.ID, "error", err)
			rendered = false
		}

		n := domain.Notification{
			Title:   AlertTitle(alert),
			Message: AlertMessage(alert),
			URL:     c.pushURL(alert, rendered),
		}

		if disablePush {
			c.logger.Info("push disabled, not sending", "title", n.Title, "message", n.Message)
			continue
		}

		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Error("notification failed", "id", alert.ID, "error", err)
			c.metrics.NotifyErrors.Inc()
			continue
		}
		c.metrics.NotificationsSent.Inc()
		res.Notified++
	}
	return res.Notified
}

// pushURL is the link attached to a notification: the hosted detail page
// when a base URL is configured and the page was written, otherwise the
// upstream alert page.
func (c *Controller) pushURL(alert domain.Alert, rendered bool) string {
	if c.baseURL != "" && rendered {
		return c.baseURL + "/" + alert.ID + ".html"
	}
	return alert.URL
}
