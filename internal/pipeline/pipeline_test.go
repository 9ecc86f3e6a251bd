package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/observability"
	"github.com/couchcryptid/noaa-alert-relay/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	feed      *domain.Feed
	feedErr   error
	feedCalls atomic.Int64

	details   map[string]domain.Detail
	detailErr map[string]error
}

func (m *mockSource) Feed(_ context.Context) (*domain.Feed, error) {
	m.feedCalls.Add(1)
	return m.feed, m.feedErr
}

func (m *mockSource) Detail(_ context.Context, apiURL string) (domain.Detail, error) {
	if err := m.detailErr[apiURL]; err != nil {
		return domain.Detail{}, err
	}
	return m.details[apiURL], nil
}

// memStore is an in-memory stand-in for the SQLite store with the same
// insert-once semantics.
type memStore struct {
	rows   []domain.Alert
	purges int
}

func (m *memStore) InsertIfAbsent(_ context.Context, alert domain.Alert) (bool, error) {
	for _, row := range m.rows {
		if row.ID == alert.ID {
			return false, nil
		}
	}
	m.rows = append(m.rows, alert)
	return true, nil
}

func (m *memStore) SelectByBatch(_ context.Context, batch int64) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, row := range m.rows {
		if row.CreatedBatch == batch {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) DeleteExpired(_ context.Context, beforeEpoch int64) (int64, error) {
	kept := m.rows[:0]
	var deleted int64
	for _, row := range m.rows {
		if row.ExpiresUTC > 0 && row.ExpiresUTC < beforeEpoch {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return deleted, nil
}

func (m *memStore) DeleteAll(_ context.Context) (int64, error) {
	n := int64(len(m.rows))
	m.rows = nil
	m.purges++
	return n, nil
}

type mockNotifier struct {
	sent []domain.Notification
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, n domain.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

type mockRenderer struct {
	rendered []domain.Alert
	err      error
}

func (m *mockRenderer) Render(alert domain.Alert, _ domain.Detail) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.rendered = append(m.rendered, alert)
	return alert.ID + ".html", nil
}

type mockExporter struct {
	exported []domain.Alert
	err      error
}

func (m *mockExporter) ExportMatches(_ context.Context, alerts []domain.Alert) error {
	m.exported = append(m.exported, alerts...)
	return m.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWatchlist(t *testing.T) *domain.Watchlist {
	t.Helper()
	return domain.NewWatchlist([]domain.County{
		{UGC: "MDC031", Name: "TEST", State: "NA"},
		{UGC: "FLC057", FIPS: "012057", Name: "Hillsborough", State: "FL"},
	}, discardLogger())
}

func feedEntry(id, event, headline string, ugc ...string) domain.FeedEntry {
	return domain.FeedEntry{Properties: domain.FeedProperties{
		ID:       id,
		Event:    event,
		Headline: headline,
		URI:      "https://alerts.weather.gov/" + id,
		APIURL:   "https://api.weather.gov/alerts/" + id,
		Geocode:  domain.Geocode{UGC: domain.CodeList(ugc)},
	}}
}

type fixture struct {
	source   *mockSource
	store    *memStore
	notifier *mockNotifier
	renderer *mockRenderer
	clock    *clockwork.FakeClock
}

func newController(t *testing.T, fx *fixture, cfg pipeline.ControllerConfig) *pipeline.Controller {
	t.Helper()
	if cfg.Source == nil {
		cfg.Source = fx.source
	}
	if cfg.Store == nil {
		cfg.Store = fx.store
	}
	if cfg.Notifier == nil {
		cfg.Notifier = fx.notifier
	}
	if cfg.Renderer == nil {
		cfg.Renderer = fx.renderer
	}
	if cfg.Watchlist == nil {
		cfg.Watchlist = testWatchlist(t)
	}
	cfg.Clock = fx.clock
	cfg.Logger = discardLogger()
	cfg.Metrics = observability.NewMetricsForTesting()
	return pipeline.NewController(cfg)
}

func newFixture(feed *domain.Feed) *fixture {
	return &fixture{
		source:   &mockSource{feed: feed, details: map[string]domain.Detail{}},
		store:    &memStore{},
		notifier: &mockNotifier{},
		renderer: &mockRenderer{},
		clock:    clockwork.NewFakeClock(),
	}
}

// --- tests ---

func TestRun_MatchedAlertIsStoredRenderedAndNotified(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued for somewhere", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{BaseURL: "https://alerts.example.com"})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Notified)

	require.Len(t, fx.renderer.rendered, 1)
	assert.Equal(t, "TEST", fx.renderer.rendered[0].CountyName)

	require.Len(t, fx.notifier.sent, 1)
	id := domain.AlertID("urn:oid:1")
	sent := fx.notifier.sent[0]
	assert.Equal(t, "TEST (NA) Weather Alert", sent.Title)
	assert.Equal(t, "Tornado Warning issued for somewhere ("+id[len(id)-5:]+")", sent.Message)
	assert.Equal(t, "https://alerts.example.com/"+id+".html", sent.URL)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	first, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notified)

	// Same feed, later run: the alert is already stored, so nothing is new.
	fx.clock.Advance(5 * time.Minute)
	second, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, second.Fetched)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 0, second.Notified)
	assert.Len(t, fx.notifier.sent, 1)
}

func TestRun_UnavailableFeedEndsRunCleanly(t *testing.T) {
	fx := newFixture(nil)
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	assert.Empty(t, fx.notifier.sent)
}

func TestRun_FeedErrorFailsRun(t *testing.T) {
	fx := newFixture(nil)
	fx.source.feedErr = errors.New("retries exhausted")
	c := newController(t, fx, pipeline.ControllerConfig{})

	_, err := c.Run(context.Background(), pipeline.Options{})
	require.Error(t, err)
}

func TestRun_UnmatchedAlertIsStoredButNotNotified(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Flood Warning", "Flood Warning issued", "TXC453"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Matched)
	assert.Len(t, fx.store.rows, 1)
	assert.Empty(t, fx.notifier.sent)
}

func TestRun_EntryWithoutIdentifierIsSkipped(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("", "Flood Warning", "no identifier", "MDC031"),
		feedEntry("urn:oid:2", "Flood Warning", "Flood Warning issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Notified)
}

func TestRun_IgnoredEventIsMatchedButNotNotified(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Flood Statement", "Flood Statement issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{
		IgnoredEvents: []string{"flood statement"},
	})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, 0, res.Notified)
	assert.Empty(t, fx.renderer.rendered)
	assert.Empty(t, fx.notifier.sent)
}

func TestRun_DetailFailureSkipsOnlyThatAlert(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
		feedEntry("urn:oid:2", "Flood Warning", "Flood Warning issued", "FLC057"),
	}})
	fx.source.detailErr = map[string]error{
		"https://api.weather.gov/alerts/urn:oid:1": errors.New("retries exhausted"),
	}
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Notified)
	require.Len(t, fx.notifier.sent, 1)
	assert.Equal(t, "Hillsborough (FL) Weather Alert", fx.notifier.sent[0].Title)
}

func TestRun_NotifyFailureDoesNotAbortRun(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	fx.notifier.err = errors.New("status 500")
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, res.Notified)
}

func TestRun_RenderFailureFallsBackToUpstreamURL(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	fx.renderer.err = errors.New("disk full")
	c := newController(t, fx, pipeline.ControllerConfig{BaseURL: "https://alerts.example.com"})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
	require.Len(t, fx.notifier.sent, 1)
	assert.Equal(t, "https://alerts.weather.gov/urn:oid:1", fx.notifier.sent[0].URL)
}

func TestRun_WithoutBaseURLUsesUpstreamURL(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	_, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	require.Len(t, fx.notifier.sent, 1)
	assert.Equal(t, "https://alerts.weather.gov/urn:oid:1", fx.notifier.sent[0].URL)
}

func TestRun_DisablePushRendersWithoutSending(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{DisablePush: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, res.Notified)
	assert.Len(t, fx.renderer.rendered, 1)
	assert.Empty(t, fx.notifier.sent)
}

func TestRun_PurgeMakesEveryAlertNewAgain(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	c := newController(t, fx, pipeline.ControllerConfig{})

	_, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	fx.clock.Advance(5 * time.Minute)
	res, err := c.Run(context.Background(), pipeline.Options{Purge: true})
	require.NoError(t, err)

	assert.Equal(t, 1, fx.store.purges)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Notified)
	assert.Len(t, fx.notifier.sent, 2)
}

func TestRun_ExpiredAlertsAreCollectedBeforeFetch(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: nil})
	now := fx.clock.Now().UTC().Unix()
	fx.store.rows = []domain.Alert{
		{ID: "old", Title: "t", ExpiresUTC: now - 25*3600},
		{ID: "fresh", Title: "t", ExpiresUTC: now - 23*3600},
		{ID: "undated", Title: "t", ExpiresUTC: 0},
	}
	c := newController(t, fx, pipeline.ControllerConfig{})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Deleted)
	assert.Len(t, fx.store.rows, 2)
}

func TestRun_ExportsMatchedAlerts(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	exp := &mockExporter{}
	c := newController(t, fx, pipeline.ControllerConfig{Exporter: exp})

	_, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	require.Len(t, exp.exported, 1)
	assert.Equal(t, "TEST", exp.exported[0].CountyName)
}

func TestRun_ExportFailureDoesNotFailRun(t *testing.T) {
	fx := newFixture(&domain.Feed{Features: []domain.FeedEntry{
		feedEntry("urn:oid:1", "Tornado Warning", "Tornado Warning issued", "MDC031"),
	}})
	exp := &mockExporter{err: errors.New("broker unreachable")}
	c := newController(t, fx, pipeline.ControllerConfig{Exporter: exp})

	res, err := c.Run(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
}
