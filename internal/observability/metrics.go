package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alert relay pipeline.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec // labels: outcome={success,soft_failure,error}
	AlertsFetched     prometheus.Counter
	AlertsInserted    prometheus.Counter
	AlertsSkipped     prometheus.Counter
	AlertsMatched     prometheus.Counter
	AlertsIgnored     prometheus.Counter
	NotificationsSent prometheus.Counter
	NotifyErrors      prometheus.Counter
	ExpiredDeleted    prometheus.Counter
	RunDuration       prometheus.Histogram
	LastSuccessTime   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		AlertsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "alerts_fetched_total",
			Help:      "Total feed entries seen across runs.",
		}),
		AlertsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "alerts_inserted_total",
			Help:      "Total alerts newly inserted into the store.",
		}),
		AlertsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "alerts_skipped_total",
			Help:      "Total feed entries skipped during normalization.",
		}),
		AlertsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "alerts_matched_total",
			Help:      "Total new alerts matching the watch-list.",
		}),
		AlertsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "alerts_ignored_total",
			Help:      "Total matched alerts suppressed by the ignored-event list.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "notifications_sent_total",
			Help:      "Total push notifications delivered.",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "notification_errors_total",
			Help:      "Total push notification delivery failures.",
		}),
		ExpiredDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "expired_deleted_total",
			Help:      "Total alerts removed by the expiry GC pass.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_relay",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-match-notify run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_relay",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	prometheus.MustRegister(
		m.RunsTotal,
		m.AlertsFetched,
		m.AlertsInserted,
		m.AlertsSkipped,
		m.AlertsMatched,
		m.AlertsIgnored,
		m.NotificationsSent,
		m.NotifyErrors,
		m.ExpiredDeleted,
		m.RunDuration,
		m.LastSuccessTime,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RunsTotal:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "runs_total"}, []string{"outcome"}),
		AlertsFetched:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "alerts_fetched_total"}),
		AlertsInserted:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "alerts_inserted_total"}),
		AlertsSkipped:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "alerts_skipped_total"}),
		AlertsMatched:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "alerts_matched_total"}),
		AlertsIgnored:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "alerts_ignored_total"}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "notifications_sent_total"}),
		NotifyErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "notification_errors_total"}),
		ExpiredDeleted:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "expired_deleted_total"}),
		RunDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "alert_relay", Name: "run_duration_seconds"}),
		LastSuccessTime:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "alert_relay", Name: "last_success_timestamp_seconds"}),
	}
}
